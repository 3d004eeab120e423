package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry повторяет fn с экспоненциальной задержкой, пока не кончатся попытки или ctx.
// Ошибку, обернутую в backoff.Permanent, не повторяем.
func Retry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx))
}

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	return backoff.Permanent(err)
}
