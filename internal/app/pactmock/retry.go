package pactmock

import (
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

// retryFor polls do at a fixed delay until it reports success or the
// duration budget runs out, passing each attempt the time remaining.
// Returns whether the condition was met.
func retryFor(do func(timeLeft time.Duration) bool, delay, duration time.Duration) bool {
	start := time.Now()
	attempts := uint(duration/delay) + 1

	err := retry.Do(func() error {
		timeLeft := duration - time.Since(start)
		if !do(timeLeft) {
			return errors.New("condition not met")
		}
		return nil
	},
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err != nil && time.Since(start) <= duration
		}),
	)
	return err == nil
}
