package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Hook observes message handling. Before may enrich the handler context; an
// error from it fails the message without calling the handler. Nil funcs are skipped.
type Hook struct {
	Before func(ctx context.Context, km kafka.Message) (context.Context, error)
	After  func(ctx context.Context, km kafka.Message, err error)
}

type requestIDKey struct{}

// RequestIDHeader lets producers correlate an async request with the logs it causes.
const RequestIDHeader = "request_id"

// RequestIDHook copies the request_id header into the handler context,
// falling back to the message key.
func RequestIDHook() Hook {
	return Hook{
		Before: func(ctx context.Context, km kafka.Message) (context.Context, error) {
			id := header(km, RequestIDHeader)
			if id == "" {
				id = string(km.Key)
			}
			if id == "" {
				return ctx, nil
			}
			return context.WithValue(ctx, requestIDKey{}, id), nil
		},
	}
}

// RequestID returns the id stamped by RequestIDHook, or "".
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

func header(km kafka.Message, key string) string {
	for _, h := range km.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
