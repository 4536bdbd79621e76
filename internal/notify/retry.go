package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	maxSendAttempts  = 3
	defaultRetryWait = 2 * time.Second
)

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// withRetry runs call and retries it while Telegram answers 429.
func (m *TelegoMessenger) withRetry(ctx context.Context, logPrefix string, call func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		err := call()
		if err == nil {
			if attempt > 1 {
				log.Printf("%s Succeeded after %d attempt(s)", logPrefix, attempt)
			}
			return nil
		}
		lastErr = err

		errStr := err.Error()
		if !strings.Contains(errStr, "Too Many Requests") && !strings.Contains(errStr, "429") {
			return err
		}

		wait := defaultRetryWait
		if seconds, ok := parseRetryAfter(errStr); ok {
			wait = time.Duration(seconds) * time.Second
		}
		log.Printf("%s Rate limit hit (attempt %d/%d), waiting %v", logPrefix, attempt, maxSendAttempts, wait)
		if err := m.wait(ctx, wait); err != nil {
			return fmt.Errorf("%s cancelled during rate limit wait: %w", logPrefix, err)
		}
	}
	return fmt.Errorf("%s max attempts (%d) exceeded: %w", logPrefix, maxSendAttempts, lastErr)
}

// parseRetryAfter extracts N from an error ending in "retry after N".
func parseRetryAfter(errorString string) (int, bool) {
	var retryAfter int
	fields := strings.Fields(errorString)
	if len(fields) >= 3 && fields[len(fields)-2] == "after" {
		_, err := fmt.Sscan(fields[len(fields)-1], &retryAfter)
		if err == nil && retryAfter > 0 {
			return retryAfter, true
		}
	}
	return 0, false
}
