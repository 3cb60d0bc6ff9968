// Package webmonitor implements the web monitor (C8): it fetches a set of
// submitted URLs on an interval, detects content changes via hash
// comparison, and falls back to a headless-browser collaborator when a
// plain HTTP fetch yields suspiciously little text (spec.md §4.8).
package webmonitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/internal/metrics"
)

// interCheckPause is the spacing between individual URL checks within a
// single sweep, keeping a large monitored set from bursting past the
// global rate limiter in one instant.
const interCheckPause = 2 * time.Second

// Limits carried over from web_fetcher.py's module-level constants.
const (
	MaxHTMLBytes         = 5 * 1024 * 1024
	MaxTextChars         = 100_000
	DefaultTimeout       = 30 * time.Second
	DefaultCheckInterval = 24 * time.Hour
	UserAgent            = "koi-node/1.0 (federated knowledge mesh node)"
)

// ErrHeadlessUnavailable is returned by the stub HeadlessFetcher -- a real
// browser-automation collaborator is an external dependency per spec.md §1
// Non-goals, so koi-node only defines the seam an operator plugs one into.
var ErrHeadlessUnavailable = errors.New("webmonitor: headless fetcher not configured")

// ErrRateLimited is returned by Monitor.Fetch when either the per-user or
// the global rate limit has been exhausted for this hour.
var ErrRateLimited = errors.New("webmonitor: rate limit exceeded")

// FetchResult is the outcome of successfully retrieving and extracting a
// page's content.
type FetchResult struct {
	URL         string
	Title       string
	Text        string
	ContentHash string
	WordCount   int
	FetchedAt   time.Time
	ViaHeadless bool
}

// Fetcher retrieves raw HTML for a URL. http.Client satisfies a thin
// adapter of this via DefaultFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (html string, err error)
}

// HeadlessFetcher is the seam for a real browser-automation backend. The
// stub NoHeadlessFetcher always returns ErrHeadlessUnavailable so a node
// with no such backend configured degrades to plain HTTP only.
type HeadlessFetcher interface {
	FetchRendered(ctx context.Context, url string) (html string, err error)
}

// NoHeadlessFetcher is the default HeadlessFetcher: always unavailable.
type NoHeadlessFetcher struct{}

// FetchRendered always returns ErrHeadlessUnavailable.
func (NoHeadlessFetcher) FetchRendered(ctx context.Context, url string) (string, error) {
	return "", ErrHeadlessUnavailable
}

// DefaultFetcher retrieves HTML via net/http, capping the response body at
// MaxHTMLBytes.
type DefaultFetcher struct {
	Client *http.Client
}

// NewDefaultFetcher builds a DefaultFetcher with the given timeout.
func NewDefaultFetcher(timeout time.Duration) *DefaultFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DefaultFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch issues a GET request with the koi-node user agent and reads up to
// MaxHTMLBytes of the response body.
func (f *DefaultFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("webmonitor: build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webmonitor: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("webmonitor: fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxHTMLBytes))
	if err != nil {
		return "", fmt.Errorf("webmonitor: read body: %w", err)
	}
	return string(body), nil
}

// Monitor fetches and hash-compares submitted URLs on an interval,
// enforcing per-user and global rate limits and falling back to a headless
// fetch when the plain-HTTP extraction looks too thin.
type Monitor struct {
	fetcher       Fetcher
	headless      HeadlessFetcher
	store         *Store
	headlessWords int
	checkInterval time.Duration
	log           logger.Logger

	globalLimiter *rate.Limiter

	mu           sync.Mutex
	userLimiters map[string]*rate.Limiter
	userRatePerH int
	lastBeat     time.Time
}

// LastBeat reports the time the monitor last completed a full sweep of
// monitored URLs, used by health.TaskHealthCheck.
func (m *Monitor) LastBeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBeat
}

// Run starts the periodic re-check loop and blocks until ctx is cancelled.
// A single URL's fetch failure never stops the sweep (spec.md §4.4).
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		m.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.sweep(ctx)
			}
		}
	})
	return g.Wait()
}

func (m *Monitor) sweep(ctx context.Context) {
	subs, err := m.store.Monitored(ctx)
	if err != nil {
		m.log.Warn("webmonitor: failed to list monitored urls", logger.Error(err))
		return
	}

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.recheck(ctx, sub)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interCheckPause):
		}
	}

	m.mu.Lock()
	m.lastBeat = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) recheck(ctx context.Context, sub Submission) {
	result, err := m.Fetch(ctx, sub.URL, sub.SubmittedBy)
	if err != nil {
		m.log.Warn("webmonitor: recheck failed", logger.String("url", sub.URL), logger.Error(err))
		return
	}

	changed, err := m.store.RecordFetch(ctx, sub.ID, result)
	if err != nil {
		m.log.Warn("webmonitor: failed to record fetch", logger.String("url", sub.URL), logger.Error(err))
		return
	}
	if changed {
		metrics.WebHashChanges.Inc()
		m.log.Info("webmonitor: content changed", logger.String("url", sub.URL))
	}
}

// New builds a Monitor. headless may be NoHeadlessFetcher{} when no real
// browser backend is configured.
func New(fetcher Fetcher, headless HeadlessFetcher, store *Store, userRatePerHour, globalRatePerHour, headlessWordThreshold int, checkInterval time.Duration, log logger.Logger) *Monitor {
	if headlessWordThreshold <= 0 {
		headlessWordThreshold = 50
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	if userRatePerHour <= 0 {
		userRatePerHour = 5
	}
	if globalRatePerHour <= 0 {
		globalRatePerHour = 20
	}
	return &Monitor{
		fetcher:       fetcher,
		headless:      headless,
		store:         store,
		headlessWords: headlessWordThreshold,
		checkInterval: checkInterval,
		log:           log,
		globalLimiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(globalRatePerHour)), globalRatePerHour),
		userLimiters:  make(map[string]*rate.Limiter),
		userRatePerH:  userRatePerHour,
	}
}

func (m *Monitor) userLimiter(user string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.userLimiters[user]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Hour/time.Duration(m.userRatePerH)), m.userRatePerH)
	m.userLimiters[user] = l
	return l
}

// Fetch retrieves url on behalf of user, enforcing rate limits, extracting
// readable text/title, and falling back to the headless fetcher when the
// plain fetch yields fewer than headlessWords words.
func (m *Monitor) Fetch(ctx context.Context, url, user string) (FetchResult, error) {
	if !m.globalLimiter.Allow() {
		metrics.WebFetches.WithLabelValues("rate_limited").Inc()
		return FetchResult{}, ErrRateLimited
	}
	if user != "" && !m.userLimiter(user).Allow() {
		metrics.WebFetches.WithLabelValues("rate_limited").Inc()
		return FetchResult{}, ErrRateLimited
	}

	html, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.WebFetches.WithLabelValues("error").Inc()
		return FetchResult{}, err
	}

	title := ExtractTitle(html)
	text := ExtractText(html)
	viaHeadless := false

	if wordCount(text) < m.headlessWords {
		if renderedHTML, hErr := m.headless.FetchRendered(ctx, url); hErr == nil {
			title = ExtractTitle(renderedHTML)
			text = ExtractText(renderedHTML)
			viaHeadless = true
			metrics.WebFetches.WithLabelValues("headless_fallback").Inc()
		} else if !errors.Is(hErr, ErrHeadlessUnavailable) {
			m.log.Debug("webmonitor: headless fallback failed", logger.String("url", url), logger.Error(hErr))
		}
	}

	if len(text) > MaxTextChars {
		text = text[:MaxTextChars]
	}

	result := FetchResult{
		URL:         url,
		Title:       title,
		Text:        text,
		ContentHash: ContentHash(text),
		WordCount:   wordCount(text),
		FetchedAt:   time.Now(),
		ViaHeadless: viaHeadless,
	}
	if !viaHeadless {
		metrics.WebFetches.WithLabelValues("ok").Inc()
	}
	return result, nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
