package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

const defaultMaxDelay = 10 * time.Second

// JSON-RPC error codes that repeat identically on every attempt.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeReverted       = 3
)

// retryPolicy re-issues a failed call with exponential backoff capped at
// maxDelay. maxRetries counts retries, not attempts.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func (p retryPolicy) backoff(retry int) time.Duration {
	base, ceiling := p.baseDelay, p.maxDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = defaultMaxDelay
	}
	d := base
	for i := 0; i < retry && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	for retry := 0; ; retry++ {
		err := fn(ctx)
		if err == nil || retry >= p.maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(p.backoff(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// retryable reports whether err may clear on its own. Cancellation, unknown
// methods, bad parameters and reverted calls do not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeMethodNotFound, codeInvalidParams, codeReverted:
			return false
		}
	}
	return true
}
