package common

import (
	"context"
	"time"
)

const DefaultRpcTimeout = 10 * time.Second

// ContextWithTimeout falls back to DefaultRpcTimeout for non-positive timeouts.
func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultRpcTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
