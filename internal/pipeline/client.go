package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/casesweep/internal/cache"
	"github.com/ppiankov/casesweep/internal/util"
	"github.com/ppiankov/casesweep/internal/wiscraper"
	"github.com/ppiankov/casesweep/internal/worker"
)

const (
	advancedPath   = "/advanced.html"
	searchPath     = "/jsonPost/advancedCaseSearch"
	cachedDataPath = "/jsonPost"
)

var (
	// ErrUnexpectedStatus wraps every non-success portal response
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNotJSON means the portal answered a JSON endpoint with something
	// else, usually an interstitial challenge page
	ErrNotJSON = errors.New("portal returned a non-JSON response")
)

// StatusError carries the HTTP status of a failed portal request
type StatusError struct {
	Method string
	Path   string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, ErrUnexpectedStatus, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// ClientOptions configures a portal client
type ClientOptions struct {
	BaseURL    string
	UserAgent  string
	Cookie     string // raw Cookie header, e.g. "JSessionId_9401=abc; other=1"
	Timeout    time.Duration
	MaxRetries int           // total attempts per request
	RetryWait  time.Duration // first backoff step; doubles up to 10x
	Proxy      util.ProxyConfig

	// Limiter paces every request including retries; nil disables pacing
	Limiter *worker.Limiter
	// RespectRobots consults robots.txt once before bootstrap
	RespectRobots bool

	// Cache holds responses for windows that closed before today; nil disables it
	Cache    cache.Cache
	CacheTTL time.Duration
}

// Client talks to the portal's JSON endpoints over one cookie session
type Client struct {
	http   *resty.Client
	base   *url.URL
	jar    http.CookieJar
	opts   ClientOptions
	robots *util.RobotsChecker
	cache  cache.Cache
	now    func() time.Time
}

// NewClient builds a client without touching the network; call Bootstrap
// before searching
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 500 * time.Millisecond
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if cookies := ParseCookieHeader(opts.Cookie); len(cookies) > 0 {
		jar.SetCookies(base, cookies)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(opts.Proxy)

	origin := base.String()
	rc := resty.New().
		SetBaseURL(origin).
		SetTransport(transport).
		SetCookieJar(jar).
		SetTimeout(opts.Timeout).
		SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname())).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("Origin", origin).
		SetHeader("Referer", origin+advancedPath).
		SetRetryCount(opts.MaxRetries - 1).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(10 * opts.RetryWait).
		AddRetryCondition(isRetryable)
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}

	c := &Client{
		http:  rc,
		base:  base,
		jar:   jar,
		opts:  opts,
		cache: opts.Cache,
		now:   time.Now,
	}
	if c.cache == nil {
		c.cache = cache.Nop{}
	}
	if opts.RespectRobots {
		c.robots = util.NewRobotsChecker(rc.GetClient(), opts.UserAgent, opts.Timeout)
	}

	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if opts.Limiter == nil {
			return nil
		}
		return opts.Limiter.Wait(r.Context(), origin)
	})

	return c, nil
}

// isRetryable retries throttling, server errors and transport failures,
// but never a cancelled context
func isRetryable(r *resty.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		var urlErr *url.Error
		return errors.As(err, &netErr) || errors.As(err, &urlErr)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= 500
}

// Bootstrap loads the advanced search page so the portal issues session
// cookies
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.robots != nil {
		crawlDelay, err := c.robots.Check(ctx, c.base.String()+searchPath)
		if err != nil {
			return err
		}
		if c.opts.Limiter != nil {
			slowed, err := c.opts.Limiter.ApplyCrawlDelay(c.base.String(), crawlDelay)
			if err != nil {
				return fmt.Errorf("apply crawl delay: %w", err)
			}
			if slowed {
				zerolog.Ctx(ctx).Info().Dur("crawl_delay", crawlDelay).Msg("pacing to robots.txt crawl delay")
			}
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		Get(advancedPath)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if resp.IsError() {
		return statusError(resp)
	}

	zerolog.Ctx(ctx).Debug().
		Int("cookies", len(c.jar.Cookies(c.base))).
		Msg("portal session ready")
	return nil
}

type searchRequest struct {
	IncludeMissingDOB        bool              `json:"includeMissingDob"`
	IncludeMissingMiddleName bool              `json:"includeMissingMiddleName"`
	AttorneyType             string            `json:"attyType"`
	ClassCode                string            `json:"classCode"`
	FilingDate               map[string]string `json:"filingDate"`
}

type searchResponse struct {
	Result *struct {
		Cases []wiscraper.Row `json:"cases"`
	} `json:"result"`
}

// AdvancedCaseSearch runs one advanced search and returns the raw case rows
func (c *Client) AdvancedCaseSearch(ctx context.Context, q wiscraper.SearchQuery) ([]wiscraper.Row, error) {
	body := searchRequest{
		IncludeMissingDOB:        q.IncludeMissingDOB,
		IncludeMissingMiddleName: q.IncludeMissingMiddleName,
		AttorneyType:             q.AttorneyType,
		ClassCode:                q.ClassCode,
		FilingDate:               q.Window.Payload(),
	}

	log := zerolog.Ctx(ctx).With().
		Str("class_code", q.ClassCode).
		Stringer("window", q.Window).
		Logger()

	key := searchCacheKey(c.base.String(), body)
	cacheable := c.windowClosed(q.Window)
	if cacheable {
		if data, ok := c.cache.Get(key); ok {
			rows, err := decodeSearch(data)
			if err == nil {
				log.Debug().Int("rows", len(rows)).Msg("search cache hit")
				return rows, nil
			}
			_ = c.cache.Delete(key)
		}
	}

	data, err := c.postJSON(ctx, searchPath, body)
	if err != nil {
		return nil, err
	}
	rows, err := decodeSearch(data)
	if err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if cacheable {
		if err := c.cache.Set(key, data, c.opts.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("cache write failed")
		}
	}
	log.Debug().Int("rows", len(rows)).Msg("search complete")
	return rows, nil
}

func decodeSearch(data []byte) ([]wiscraper.Row, error) {
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return []wiscraper.Row{}, nil
	}
	rows := make([]wiscraper.Row, 0, len(resp.Result.Cases))
	for _, row := range resp.Result.Cases {
		if row != nil {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func searchCacheKey(baseURL string, body searchRequest) string {
	return cache.Key("search",
		baseURL,
		body.ClassCode,
		body.FilingDate["start"],
		body.FilingDate["end"],
		body.AttorneyType,
		strconv.FormatBool(body.IncludeMissingDOB),
		strconv.FormatBool(body.IncludeMissingMiddleName),
	)
}

// windowClosed reports whether every day of w is before today (UTC)
func (c *Client) windowClosed(w wiscraper.SearchWindow) bool {
	return w.End.Before(wiscraper.Day(c.now().UTC()))
}

// ClassCodeEntry is one class code from the portal's cached data
type ClassCodeEntry struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// ClassCode converts the entry to the sweep's class code type
func (e ClassCodeEntry) ClassCode() wiscraper.ClassCode {
	return wiscraper.ClassCode{Code: e.Code, Label: e.Description}
}

// ListClassCodes fetches the class code table, sorted by code
func (c *Client) ListClassCodes(ctx context.Context, includeInactive bool) ([]ClassCodeEntry, error) {
	data, err := c.postJSON(ctx, cachedDataPath, map[string]any{
		"cachedData": map[string]any{"wcisClsCodes": map[string]any{}},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		CachedData struct {
			Codes []map[string]any `json:"wcisClsCodes"`
		} `json:"cachedData"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode class codes: %w", err)
	}
	return parseClassCodes(resp.CachedData.Codes, includeInactive), nil
}

func parseClassCodes(items []map[string]any, includeInactive bool) []ClassCodeEntry {
	if len(items) == 0 {
		return []ClassCodeEntry{}
	}

	// the portal has shipped both spellings; the first entry decides
	codeKey, descKey := "classCode", "description"
	if _, ok := items[0][codeKey]; !ok {
		codeKey = "wcisClsCode"
	}
	if _, ok := items[0][descKey]; !ok {
		descKey = "descr"
	}

	entries := make([]ClassCodeEntry, 0, len(items))
	for _, item := range items {
		active := true
		if v, ok := item["isActive"].(bool); ok {
			active = v
		}
		if !active && !includeInactive {
			continue
		}
		entries = append(entries, ClassCodeEntry{
			Code:        scalarString(item[codeKey]),
			Description: scalarString(item[descKey]),
			Active:      active,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Code < entries[j].Code
	})
	return entries
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func (c *Client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}

	data := resp.Body()
	if !looksLikeJSON(resp.Header().Get("Content-Type"), data) {
		return nil, fmt.Errorf("POST %s: %w", path, ErrNotJSON)
	}
	return data, nil
}

func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

func statusError(resp *resty.Response) error {
	path := resp.Request.URL
	if u, err := url.Parse(path); err == nil {
		path = u.Path
	}
	return &StatusError{
		Method: resp.Request.Method,
		Path:   path,
		Code:   resp.StatusCode(),
		Status: resp.Status(),
	}
}

// Cookies returns the session cookies for the portal
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.base)
}

// Close releases idle connections
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

// ParseCookieHeader splits a raw Cookie header into cookies. Parts without
// "=" or with an empty name are skipped.
func ParseCookieHeader(raw string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}

// NewSessionFactory returns a factory that opens a bootstrapped client per
// sweep
func NewSessionFactory(opts ClientOptions) wiscraper.SessionFactory {
	return func(ctx context.Context) (wiscraper.Session, error) {
		client, err := NewClient(opts)
		if err != nil {
			return nil, err
		}
		if err := client.Bootstrap(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}
}
