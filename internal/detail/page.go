package detail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrContentMissing means the case content never appeared on the page
var ErrContentMissing = errors.New("case content did not load")

// ContentSelector matches the parties section or the case summary heading
const ContentSelector = "#parties, table.parties, div.case-details"

// Page is one browser tab
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until selector matches a visible node or ctx ends
	WaitVisible(ctx context.Context, selector string) error
	SessionStorage(ctx context.Context) (map[string]string, error)
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Close() error
}

// ChallengeHandler runs after each navigation and returns once the case
// content is showing
type ChallengeHandler interface {
	Clear(ctx context.Context, page Page) error
}

// NoChallenge assumes the page loads without intervention
type NoChallenge struct{}

func (NoChallenge) Clear(context.Context, Page) error { return nil }

// ManualChallenge waits for a person to clear any interstitial in a headed
// browser. It prints a prompt when the content is not there right away.
type ManualChallenge struct {
	Selector string
	Timeout  time.Duration
	Prompt   io.Writer

	// Grace is how long to wait silently before prompting
	Grace time.Duration
}

func (m ManualChallenge) Clear(ctx context.Context, page Page) error {
	selector := m.Selector
	if selector == "" {
		selector = ContentSelector
	}
	grace := m.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	graceCtx, cancel := context.WithTimeout(ctx, grace)
	err := page.WaitVisible(graceCtx, selector)
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if m.Prompt != nil {
		_, _ = fmt.Fprintf(m.Prompt, "Case content not visible yet. Complete any check in the browser window (waiting up to %s).\n", m.Timeout)
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()
	if err := page.WaitVisible(waitCtx, selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %s", ErrContentMissing, m.Timeout)
	}
	return nil
}
