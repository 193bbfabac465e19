package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestTraceHookReadsHeader(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "t", km, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if TraceID(ctx) != "abc" {
		t.Fatalf("trace id = %q", TraceID(ctx))
	}
	if _, ok := StartTime(ctx); !ok {
		t.Fatal("start time not set")
	}
}

func TestNewMessageForwardsTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "xyz")
	msg, err := newMessage(ctx, "obs", []byte("1"), map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ExtractTraceID(msg) != "xyz" {
		t.Fatalf("header missing: %+v", msg.Headers)
	}
	if string(msg.Value) != `{"a":1}` {
		t.Fatalf("value = %s", msg.Value)
	}

	plain, _ := newMessage(context.Background(), "obs", nil, "raw")
	if len(plain.Headers) != 0 || string(plain.Value) != "raw" {
		t.Fatalf("unexpected message %+v", plain)
	}
}

func TestHookChainStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var errs, afters int
	chain := NewHookChain(
		HookFuncs{Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, d, boom
		}},
		nil,
		HookFuncs{
			Err:   func(context.Context, string, kafka.Message, []byte, error) { errs++ },
			After: func(context.Context, string, kafka.Message, []byte, error) { afters++ },
		},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if errs != 1 {
		t.Fatalf("OnError calls = %d", errs)
	}
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	if afters != 1 {
		t.Fatalf("AfterHandle calls = %d", afters)
	}
}

func TestHookChainRecoversPanic(t *testing.T) {
	chain := NewHookChain(HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("bad hook")
	}})
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("got %v", err)
	}
}
