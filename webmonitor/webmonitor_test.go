package webmonitor

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DarrenZal/koi-node/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewLogger(io.Discard, logger.ErrorLevel)
}

type fakeFetcher struct {
	html string
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return f.html, f.err
}

type fakeHeadless struct {
	html string
	err  error
}

func (f *fakeHeadless) FetchRendered(ctx context.Context, url string) (string, error) {
	return f.html, f.err
}

func newTestMonitor(fetcher Fetcher, headless HeadlessFetcher) *Monitor {
	return New(fetcher, headless, nil, 1000, 1000, 50, 0, testLogger())
}

func TestFetch_ExtractsTitleAndText(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{html: `<html><head><title>Hi</title></head><body><p>hello world</p></body></html>`}, NoHeadlessFetcher{})

	result, err := m.Fetch(context.Background(), "http://example.com", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Hi", result.Title)
	assert.Equal(t, "hello world", result.Text)
	assert.False(t, result.ViaHeadless)
}

func TestFetch_FallsBackToHeadlessWhenTextTooThin(t *testing.T) {
	thin := &fakeFetcher{html: `<html><body><p>hi</p></body></html>`}
	rendered := &fakeHeadless{html: `<html><title>Rendered</title><body><p>` +
		`this page needed javascript to render its real content for the reader` +
		`</p></body></html>`}
	m := newTestMonitor(thin, rendered)

	result, err := m.Fetch(context.Background(), "http://example.com", "alice")
	require.NoError(t, err)
	assert.True(t, result.ViaHeadless)
	assert.Equal(t, "Rendered", result.Title)
}

func TestFetch_HeadlessUnavailableKeepsPlainResult(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{html: `<html><body><p>hi</p></body></html>`}, NoHeadlessFetcher{})

	result, err := m.Fetch(context.Background(), "http://example.com", "alice")
	require.NoError(t, err)
	assert.False(t, result.ViaHeadless)
	assert.Equal(t, "hi", result.Text)
}

func TestFetch_PropagatesFetcherError(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{err: errors.New("boom")}, NoHeadlessFetcher{})

	_, err := m.Fetch(context.Background(), "http://example.com", "alice")
	assert.Error(t, err)
}

func TestFetch_RespectsPerUserRateLimit(t *testing.T) {
	m := New(&fakeFetcher{html: "<html><body>x</body></html>"}, NoHeadlessFetcher{}, nil, 1, 1000, 50, 0, testLogger())

	_, err := m.Fetch(context.Background(), "http://example.com", "alice")
	require.NoError(t, err)

	_, err = m.Fetch(context.Background(), "http://example.com", "alice")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestFetch_RespectsGlobalRateLimit(t *testing.T) {
	m := New(&fakeFetcher{html: "<html><body>x</body></html>"}, NoHeadlessFetcher{}, nil, 1000, 1, 50, 0, testLogger())

	_, err := m.Fetch(context.Background(), "http://example.com", "alice")
	require.NoError(t, err)

	_, err = m.Fetch(context.Background(), "http://example.com", "bob")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestFetch_TruncatesOversizedText(t *testing.T) {
	longText := ""
	for i := 0; i < MaxTextChars+1000; i++ {
		longText += "a"
	}
	m := newTestMonitor(&fakeFetcher{html: "<html><body><p>" + longText + "</p></body></html>"}, NoHeadlessFetcher{})

	result, err := m.Fetch(context.Background(), "http://example.com", "alice")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Text), MaxTextChars)
}

func TestNew_AppliesDefaults(t *testing.T) {
	m := New(&fakeFetcher{}, NoHeadlessFetcher{}, nil, 0, 0, 0, 0, testLogger())
	assert.Equal(t, 50, m.headlessWords)
	assert.Equal(t, DefaultCheckInterval, m.checkInterval)
}

func TestUserLimiter_ReusesLimiterPerUser(t *testing.T) {
	m := newTestMonitor(&fakeFetcher{}, NoHeadlessFetcher{})
	l1 := m.userLimiter("alice")
	l2 := m.userLimiter("alice")
	assert.Same(t, l1, l2)
}
