package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/casesweep/internal/cache"
	"github.com/ppiankov/casesweep/internal/detail"
	"github.com/ppiankov/casesweep/internal/logger"
	"github.com/ppiankov/casesweep/internal/model"
	"github.com/ppiankov/casesweep/internal/store"
	"github.com/ppiankov/casesweep/internal/util"
	"github.com/ppiankov/casesweep/internal/wiscraper"
	"github.com/ppiankov/casesweep/internal/worker"
)

// PageOpener starts the browser tab used by the detail stage
type PageOpener func(ctx context.Context) (detail.Page, error)

// Pipeline wires the portal client, the sweep core, the detail runner and
// optional persistence from one configuration
type Pipeline struct {
	config   *model.Config
	limiter  *worker.Limiter
	cache    cache.Cache
	store    *store.Store
	renderer *Renderer

	openSession wiscraper.SessionFactory
	openPage    PageOpener
	now         func() time.Time
	newID       func() string
}

// NewPipeline builds a pipeline. st may be nil when nothing is persisted.
func NewPipeline(cfg *model.Config, st *store.Store) *Pipeline {
	p := &Pipeline{
		config:   cfg,
		limiter:  worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize),
		cache:    cache.Nop{},
		store:    st,
		renderer: NewRenderer(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	if cfg.Cache.Enabled {
		p.cache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}
	p.openSession = NewSessionFactory(p.ClientOptions())
	p.openPage = p.openChrome
	return p
}

// Renderer returns the output renderer
func (p *Pipeline) Renderer() *Renderer { return p.renderer }

// ClientOptions derives portal client options from the configuration
func (p *Pipeline) ClientOptions() ClientOptions {
	h := p.config.HTTP
	return ClientOptions{
		BaseURL:       h.BaseURL,
		UserAgent:     h.UserAgent,
		Cookie:        h.Cookie,
		Timeout:       h.Timeout,
		MaxRetries:    h.MaxRetries,
		Proxy:         p.proxy(),
		Limiter:       p.limiter,
		RespectRobots: h.RespectRobots,
		Cache:         p.cache,
		CacheTTL:      p.config.Cache.DiskTTL,
	}
}

func (p *Pipeline) proxy() util.ProxyConfig {
	return util.ProxyConfig{HTTPProxy: p.config.HTTP.HTTPProxy, HTTPSProxy: p.config.HTTP.HTTPSProxy}
}

// SweepParams are the per-run inputs of a sweep; zero values fall back to
// the configuration
type SweepParams struct {
	Start      time.Time
	End        time.Time
	ClassCodes []string
}

// SweepOutcome is a finished sweep
type SweepOutcome struct {
	Report     *model.SweepReport
	ClassCodes []wiscraper.ClassCode
}

// Sweep runs one sweep, builds its report and stores it when a database is
// configured
func (p *Pipeline) Sweep(ctx context.Context, params SweepParams) (*SweepOutcome, error) {
	policy, err := wiscraper.ParseFailurePolicy(p.config.Sweep.OnError)
	if err != nil {
		return nil, err
	}
	selected := params.ClassCodes
	if len(selected) == 0 {
		selected = p.config.Sweep.ClassCodes
	}
	classCodes := wiscraper.ResolveClassCodes(selected, wiscraper.DefaultClassCodes())

	runID := p.newID()
	ctx = logger.WithRun(ctx, runID)
	log := zerolog.Ctx(ctx)

	req := wiscraper.SweepRequest{
		Start:       params.Start,
		End:         params.End,
		ClassCodes:  classCodes,
		SpanDays:    p.config.Sweep.SpanDays,
		Policy:      policy,
		Concurrency: p.config.Sweep.Concurrency,
	}
	log.Info().
		Time("start", wiscraper.Day(req.Start)).
		Time("end", wiscraper.Day(req.End)).
		Strs("class_codes", wiscraper.Codes(classCodes)).
		Int("span_days", req.SpanDays).
		Msg("sweep requested")

	result, err := wiscraper.NewAggregator(p.openSession).Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	cases := wiscraper.Flatten(result.Cases)
	failures := make([]string, 0, len(result.Failures))
	for _, f := range result.Failures {
		failures = append(failures, f.Error())
	}
	report := &model.SweepReport{
		Meta: model.SweepMeta{
			RunID:      runID,
			Start:      wiscraper.Day(req.Start).Format(time.DateOnly),
			End:        wiscraper.Day(req.End).Format(time.DateOnly),
			SpanDays:   req.SpanDays,
			ClassCodes: wiscraper.Codes(classCodes),
			TotalCases: len(cases),
			Queries:    result.Queries,
		},
		Cases: cases,
	}
	if len(failures) > 0 {
		report.Meta.Failures = failures
	}
	if p.store != nil {
		if err := p.store.SaveSweep(ctx, report.Meta, cases, p.now()); err != nil {
			return nil, fmt.Errorf("store sweep: %w", err)
		}
		log.Debug().Str("db", p.store.Path()).Msg("sweep stored")
	}
	return &SweepOutcome{Report: report, ClassCodes: classCodes}, nil
}

// StoredCases returns the latest stored sweep as detail references
func (p *Pipeline) StoredCases(ctx context.Context) (string, []detail.CaseRef, error) {
	if p.store == nil {
		return "", nil, errors.New("no database configured")
	}
	rec, cases, err := p.store.LatestSweepCases(ctx)
	if err != nil {
		return "", nil, err
	}
	return rec.Meta.RunID, detail.RefsFromFlat(cases), nil
}

// DetailParams select which cases a detail run visits
type DetailParams struct {
	RunID  string // sweep the cases came from, if known
	Offset int
	Limit  int
	// Prompt receives the challenge prompt; nil keeps the wait silent
	Prompt io.Writer
	OnCase func(done, total int, env detail.Envelope)
}

// Details opens every selected case in one browser tab. Envelopes gathered
// before a cancellation are still returned and stored.
func (p *Pipeline) Details(ctx context.Context, refs []detail.CaseRef, params DetailParams) ([]detail.Envelope, error) {
	if params.RunID != "" {
		ctx = logger.WithRun(ctx, params.RunID)
	}
	log := zerolog.Ctx(ctx)
	cfg := p.config.Detail

	page, err := p.openPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn().Err(err).Msg("close browser")
		}
	}()

	runner := &detail.Runner{
		Page: page,
		Challenge: detail.ManualChallenge{
			Timeout: cfg.ChallengeWait,
			Prompt:  params.Prompt,
		},
		BaseURL:        p.config.HTTP.BaseURL,
		Limiter:        p.limiter,
		MinDelay:       cfg.MinDelay,
		MaxDelay:       cfg.MaxDelay,
		SettleDelay:    cfg.SettleDelay,
		UseResultIndex: cfg.UseResultIndex,
		Offset:         params.Offset,
		Limit:          params.Limit,
		OnCase:         params.OnCase,
	}
	envs, runErr := runner.Run(ctx, refs)

	if p.store != nil && len(envs) > 0 {
		// partial runs are kept, so the save must outlive a cancelled ctx
		if err := p.store.SaveDetails(context.WithoutCancel(ctx), params.RunID, envs, p.now()); err != nil {
			return envs, errors.Join(runErr, fmt.Errorf("store details: %w", err))
		}
	}
	return envs, runErr
}

// ClassCodes lists the portal's class codes over a fresh session
func (p *Pipeline) ClassCodes(ctx context.Context, includeInactive bool) ([]ClassCodeEntry, error) {
	client, err := NewClient(p.ClientOptions())
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	if err := client.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return client.ListClassCodes(ctx, includeInactive)
}

func (p *Pipeline) openChrome(ctx context.Context) (detail.Page, error) {
	server, err := util.ProxyServer(p.proxy(), p.config.HTTP.BaseURL)
	if err != nil {
		return nil, err
	}
	cfg := p.config.Detail
	return detail.NewChromePage(ctx, detail.ChromeOptions{
		ProfileDir:  cfg.Profile,
		Headless:    cfg.Headless,
		ProxyServer: server,
		PageTimeout: cfg.PageTimeout,
	})
}
