package medai

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// expiryMargin is how long before the access token's expiry the keep-alive
// loop refreshes it.
const expiryMargin = time.Minute

// KeepAlive refreshes the session in the background so the access token
// never expires under a caller. When the token's expiry is readable, the
// loop wakes shortly before it; otherwise it falls back to the fixed
// interval. Returns when ctx is done or the session becomes unrecoverable.
func (c *Client) KeepAlive(ctx context.Context, interval time.Duration) error {
	for {
		wait := interval
		if sess, err := c.store.Get(); err == nil && sess.Active() {
			if exp := sess.AccessExpiresAt(); !exp.IsZero() {
				if until := time.Until(exp) - expiryMargin; until > 0 && until < wait {
					wait = until
				}
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("stopping session keep-alive")
			return ctx.Err()
		case <-timer.C:
		}

		if !c.store.Active() {
			continue
		}
		if err := c.RefreshSession(ctx); err != nil {
			if errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrNoSession) {
				log.Warn().Err(err).Msg("session unrecoverable, stopping keep-alive")
				return err
			}
			log.Warn().Err(err).Msg("keep-alive refresh skipped")
		}
	}
}
