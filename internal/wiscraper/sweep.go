package wiscraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ppiankov/casesweep/internal/worker"
	"github.com/rs/zerolog"
)

// DefaultAttorneyType is the attorney filter the portal UI sends
const DefaultAttorneyType = "partyAtty"

// SearchQuery is one advanced-search request
type SearchQuery struct {
	Window                   SearchWindow
	ClassCode                string
	IncludeMissingMiddleName bool
	IncludeMissingDOB        bool
	AttorneyType             string
}

// NewSearchQuery builds a query with the fixed flags the sweep always sends
func NewSearchQuery(window SearchWindow, classCode string) SearchQuery {
	return SearchQuery{
		Window:                   window,
		ClassCode:                classCode,
		IncludeMissingMiddleName: true,
		IncludeMissingDOB:        true,
		AttorneyType:             DefaultAttorneyType,
	}
}

// SearchClient issues a single advanced search. A non-success response from
// the portal is reported as an error.
type SearchClient interface {
	AdvancedCaseSearch(ctx context.Context, q SearchQuery) ([]Row, error)
}

// Session is a SearchClient that owns a connection and must be closed
type Session interface {
	SearchClient
	Close() error
}

// SessionFactory opens a fresh session for one sweep
type SessionFactory func(ctx context.Context) (Session, error)

// FailurePolicy decides what a failed (window, class code) pair does to the sweep
type FailurePolicy string

const (
	// FailFast aborts the sweep on the first failed pair and returns no cases
	FailFast FailurePolicy = "fail-fast"
	// BestEffort skips failed pairs as a unit and records them in Result.Failures
	BestEffort FailurePolicy = "best-effort"
)

// ParseFailurePolicy parses a policy name; empty means FailFast
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailFast:
		return FailFast, nil
	case BestEffort:
		return BestEffort, nil
	default:
		return "", invalidArgument("unknown failure policy %q (want %s or %s)", s, FailFast, BestEffort)
	}
}

// SweepRequest describes one sweep
type SweepRequest struct {
	Start      time.Time
	End        time.Time
	ClassCodes []ClassCode
	SpanDays   int
	Policy     FailurePolicy
	// Concurrency > 1 runs pairs in parallel; results are still folded in
	// window-major, class-code-minor order
	Concurrency int
}

// Result is the outcome of a sweep
type Result struct {
	Cases    *Aggregated
	Failures []*QueryError
	Queries  int
}

// Aggregator runs sweeps against sessions it opens and closes itself
type Aggregator struct {
	open SessionFactory
}

// NewAggregator creates an aggregator that opens one session per Run
func NewAggregator(open SessionFactory) *Aggregator {
	return &Aggregator{open: open}
}

// Run opens a session, sweeps, and closes the session whether or not the
// sweep succeeded
func (a *Aggregator) Run(ctx context.Context, req SweepRequest) (result *Result, err error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	session, err := a.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			zerolog.Ctx(ctx).Warn().Err(closeErr).Msg("close search session")
			if err == nil {
				result, err = nil, fmt.Errorf("close session: %w", closeErr)
			}
		}
	}()

	return Sweep(ctx, session, req)
}

// pair is one (window, class code) query with its position in sweep order
type pair struct {
	seq    int
	window SearchWindow
	code   string
}

type pairResult struct {
	pair      pair
	summaries []CaseSummary
	err       error
}

func (r *pairResult) GetError() error { return r.err }

// errPairSkipped marks a pair left unqueried because an earlier pair failed
var errPairSkipped = errors.New("query skipped after earlier failure")

// failGate records the lowest failed seq so later pairs can be skipped
type failGate struct {
	lowest atomic.Int64
}

func newFailGate() *failGate {
	g := &failGate{}
	g.lowest.Store(math.MaxInt64)
	return g
}

func (g *failGate) fail(seq int) {
	for {
		cur := g.lowest.Load()
		if int64(seq) >= cur || g.lowest.CompareAndSwap(cur, int64(seq)) {
			return
		}
	}
}

func (g *failGate) closed(seq int) bool {
	return int64(seq) > g.lowest.Load()
}

type pairJob struct {
	client SearchClient
	pair   pair
	gate   *failGate // nil under BestEffort
}

func (j *pairJob) Execute(ctx context.Context) worker.Result {
	if j.gate != nil && j.gate.closed(j.pair.seq) {
		return &pairResult{pair: j.pair, err: errPairSkipped}
	}
	r := runPair(ctx, j.client, j.pair)
	if r.err != nil && j.gate != nil {
		j.gate.fail(j.pair.seq)
	}
	return r
}

// Sweep queries every window x class code pair through client and merges the
// rows by (case_no, county_no). The client is not closed.
func Sweep(ctx context.Context, client SearchClient, req SweepRequest) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	log := zerolog.Ctx(ctx)

	pairs, err := buildPairs(req)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("pairs", len(pairs)).
		Int("class_codes", len(req.ClassCodes)).
		Int("span_days", req.SpanDays).
		Str("policy", string(req.Policy)).
		Msg("sweep started")

	var results []*pairResult
	if req.Concurrency > 1 && len(pairs) > 1 {
		results = runConcurrent(ctx, client, pairs, req.Concurrency, req.Policy != BestEffort)
	} else {
		results = make([]*pairResult, 0, len(pairs))
		for _, p := range pairs {
			r := runPair(ctx, client, p)
			results = append(results, r)
			if r.err != nil && req.Policy != BestEffort {
				break
			}
		}
	}

	out := &Result{Cases: NewAggregated(), Queries: len(results)}
	for _, r := range results {
		if r.err != nil {
			qerr := &QueryError{Window: r.pair.window, ClassCode: r.pair.code, Err: r.err}
			if req.Policy != BestEffort {
				return nil, qerr
			}
			log.Warn().Err(r.err).Str("window", r.pair.window.String()).Str("class_code", r.pair.code).Msg("query skipped")
			out.Failures = append(out.Failures, qerr)
			continue
		}
		added := 0
		for _, s := range r.summaries {
			if out.Cases.Add(s) {
				added++
			}
		}
		log.Debug().
			Str("window", r.pair.window.String()).
			Str("class_code", r.pair.code).
			Int("rows", len(r.summaries)).
			Int("new_cases", added).
			Msg("query folded")
	}

	log.Info().Int("cases", out.Cases.Len()).Int("queries", out.Queries).Int("failures", len(out.Failures)).Msg("sweep finished")
	return out, nil
}

func validate(req SweepRequest) error {
	if req.SpanDays < 1 {
		return invalidArgument("span_days must be >= 1, got %d", req.SpanDays)
	}
	if _, err := ParseFailurePolicy(string(req.Policy)); err != nil {
		return err
	}
	return nil
}

func buildPairs(req SweepRequest) ([]pair, error) {
	windows, err := Windows(req.Start, req.End, req.SpanDays)
	if err != nil {
		return nil, err
	}

	var pairs []pair
	for w := range windows {
		for _, c := range req.ClassCodes {
			pairs = append(pairs, pair{seq: len(pairs), window: w, code: c.Code})
		}
	}
	return pairs, nil
}

// runPair queries one pair and normalizes all of its rows; any row failure
// fails the whole pair
func runPair(ctx context.Context, client SearchClient, p pair) *pairResult {
	if err := ctx.Err(); err != nil {
		return &pairResult{pair: p, err: err}
	}

	rows, err := client.AdvancedCaseSearch(ctx, NewSearchQuery(p.window, p.code))
	if err != nil {
		return &pairResult{pair: p, err: err}
	}

	summaries := make([]CaseSummary, 0, len(rows))
	for i, row := range rows {
		s, err := FromRaw(row, p.code)
		if err != nil {
			return &pairResult{pair: p, err: fmt.Errorf("row %d: %w", i, err)}
		}
		summaries = append(summaries, s)
	}
	return &pairResult{pair: p, summaries: summaries}
}

// runConcurrent runs every pair through a worker pool and returns the results
// sorted back into sweep order. With stopOnError, pairs after the earliest
// failure are not queried; pairs before it still run so the reported failure
// is the first one in sweep order.
func runConcurrent(ctx context.Context, client SearchClient, pairs []pair, workers int, stopOnError bool) []*pairResult {
	var gate *failGate
	if stopOnError {
		gate = newFailGate()
	}

	pool := worker.NewPoolWithContext(ctx, workers)
	pool.Start()
	for _, p := range pairs {
		if gate != nil && gate.closed(p.seq) {
			continue
		}
		pool.Submit(&pairJob{client: client, pair: p, gate: gate})
	}

	raw := pool.Wait()
	results := make([]*pairResult, 0, len(pairs))
	seen := make(map[int]bool, len(raw))
	for _, r := range raw {
		pr := r.(*pairResult)
		seen[pr.pair.seq] = true
		results = append(results, pr)
	}
	// pairs dropped by a cancelled pool still need a result
	for _, p := range pairs {
		if !seen[p.seq] {
			err := ctx.Err()
			if err == nil {
				err = errPairSkipped
			}
			results = append(results, &pairResult{pair: p, err: err})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].pair.seq < results[j].pair.seq })
	return results
}
