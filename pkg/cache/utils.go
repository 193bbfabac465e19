package cache

import (
	"fmt"
	"strings"
)

// GenerateKeyWithParams joins prefix and params with ':'.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// BuildPattern returns the glob matching every key under prefix.
func BuildPattern(prefix string) string {
	return prefix + "*"
}
