// Package probe polls external readiness checks at a fixed interval.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = time.Second
	DefaultTimeout  = 5 * time.Minute
)

// ErrTimeout is returned when the check never reports ready within Timeout.
var ErrTimeout = errors.New("timed out waiting for readiness")

// Policy bounds a polling loop.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
	// MaxErrors stops the loop after this many consecutive check errors.
	// Zero keeps polling through errors until Timeout.
	MaxErrors int
}

func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

// Check reports whether the resource is ready.
type Check func(ctx context.Context) (bool, error)

// Until calls check immediately and then every Interval until it reports
// ready, the Timeout elapses, MaxErrors consecutive errors occur, or ctx is
// cancelled.
func Until(ctx context.Context, p Policy, name string, check Check) error {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var errCount int
	for attempt := 1; ; attempt++ {
		ok, err := check(ctx)
		switch {
		case err != nil:
			errCount++
			log.Debug().Err(err).Str("probe", name).Int("attempt", attempt).Msg("Readiness check failed")
			if p.MaxErrors > 0 && errCount >= p.MaxErrors {
				return fmt.Errorf("%s: %w", name, err)
			}
		case ok:
			return nil
		default:
			errCount = 0
			log.Debug().Str("probe", name).Int("attempt", attempt).Msg("Not ready yet")
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s: %w after %s", name, ErrTimeout, p.Timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
