package llm

import (
	"errors"
	"strings"
	"sync/atomic"
)

// ErrStreamConsumed is yielded when a TokenStream is ranged over a second time.
var ErrStreamConsumed = errors.New("token stream already consumed")

// Collect drains stream and joins every delta into the final text.
func Collect(stream TokenStream) (string, error) {
	var sb strings.Builder
	for delta, err := range stream {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
	return sb.String(), nil
}

// Once wraps a stream so that any iteration after the first yields ErrStreamConsumed.
func Once(stream TokenStream) TokenStream {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}
		stream(yield)
	}
}
