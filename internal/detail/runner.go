package detail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/casesweep/internal/worker"
)

// Runner opens case detail pages one after another in a single tab
type Runner struct {
	Page      Page
	Challenge ChallengeHandler
	BaseURL   string

	// Limiter paces page loads; nil means only the jitter delay applies
	Limiter *worker.Limiter
	// MinDelay and MaxDelay bound the random pause between cases
	MinDelay time.Duration
	MaxDelay time.Duration
	// SettleDelay lets client-side rendering finish before reading the page
	SettleDelay time.Duration

	// UseResultIndex adds index and isAdvanced to detail links
	UseResultIndex bool
	Offset         int
	Limit          int // 0 means no limit

	// OnCase is called after each case, for progress output
	OnCase func(done, total int, env Envelope)
}

// Window applies offset and limit to refs
func Window(refs []CaseRef, offset, limit int) []CaseRef {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(refs) {
		return []CaseRef{}
	}
	refs = refs[offset:]
	if limit > 0 && limit < len(refs) {
		refs = refs[:limit]
	}
	return refs
}

// Run fetches every selected case. A failed case is recorded on its envelope
// and the run moves on; only cancellation stops it early, returning the
// envelopes gathered so far with ctx's error.
func (r *Runner) Run(ctx context.Context, refs []CaseRef) ([]Envelope, error) {
	if r.Page == nil {
		return nil, errors.New("detail runner has no page")
	}
	challenge := r.Challenge
	if challenge == nil {
		challenge = NoChallenge{}
	}
	limiter := r.Limiter
	if limiter == nil {
		limiter = worker.NewLimiter(0, 1)
	}
	log := zerolog.Ctx(ctx)

	selected := Window(refs, r.Offset, r.Limit)
	envelopes := make([]Envelope, 0, len(selected))

	for i, ref := range selected {
		if i > 0 {
			if _, err := limiter.WaitJitter(ctx, r.BaseURL, r.MinDelay, r.MaxDelay); err != nil {
				return envelopes, err
			}
		} else if err := limiter.Wait(ctx, r.BaseURL); err != nil {
			return envelopes, err
		}

		env, err := r.fetch(ctx, challenge, ref)
		if err != nil {
			if ctx.Err() != nil {
				return envelopes, ctx.Err()
			}
			env = Envelope{Case: ref, Parties: []PartyRecord{}, Error: err.Error()}
			log.Warn().Err(err).Str("case_no", ref.CaseNo).Int("county_no", ref.CountyNo).Msg("case detail failed")
		} else {
			log.Debug().Str("case_no", ref.CaseNo).Str("source", env.Source).Int("parties", len(env.Parties)).Msg("case detail read")
		}

		envelopes = append(envelopes, env)
		if r.OnCase != nil {
			r.OnCase(i+1, len(selected), env)
		}
	}
	return envelopes, nil
}

func (r *Runner) fetch(ctx context.Context, challenge ChallengeHandler, ref CaseRef) (Envelope, error) {
	index := -1
	if r.UseResultIndex {
		index = ref.ResultIndex
	}
	link := CaseDetailURL(r.BaseURL, ref.CaseNo, ref.CountyNo, index)

	if err := r.Page.Navigate(ctx, link); err != nil {
		return Envelope{}, err
	}
	if err := challenge.Clear(ctx, r.Page); err != nil {
		return Envelope{}, err
	}
	if r.SettleDelay > 0 {
		timer := time.NewTimer(r.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Envelope{}, ctx.Err()
		case <-timer.C:
		}
	}

	detail, source, err := r.read(ctx, link)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Case:    ref,
		Detail:  detail,
		Parties: BuildParties(ref, detail),
		Source:  source,
	}, nil
}

// read prefers the page's sessionStorage JSON and falls back to the HTML
func (r *Runner) read(ctx context.Context, link string) (map[string]any, string, error) {
	storage, err := r.Page.SessionStorage(ctx)
	if err == nil {
		if detail, ok := FromSessionStorage(storage); ok {
			return detail, SourceSessionStorage, nil
		}
	} else if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	html, err := r.Page.HTML(ctx)
	if err != nil {
		return nil, "", err
	}
	pageURL, err := r.Page.URL(ctx)
	if err != nil || pageURL == "" {
		pageURL = link
	}
	detail, err := ExtractHTML(pageURL, html)
	if err != nil {
		return nil, "", fmt.Errorf("html fallback: %w", err)
	}
	return detail, SourceHTML, nil
}
