package queue

import "context"

// Job consumes messages of a single Type. Name identifies the job in logs
// and metrics; the payload is decoded with ParsePayload.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}
