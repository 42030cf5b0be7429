package scrape

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeFetcher returns canned text per URL and counts calls.
type fakeFetcher struct {
	name  string
	text  map[string]string
	err   error
	calls int
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text[url], nil
}

type fakeLocator struct {
	url   string
	err   error
	calls int
}

func (f *fakeLocator) FindWebsite(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.url, f.err
}

func longText() string {
	return strings.Repeat("word ", 30)
}

func TestChain_LightSuccessSkipsRendered(t *testing.T) {
	light := &fakeFetcher{name: "light", text: map[string]string{"acme.com": longText()}}
	rendered := &fakeFetcher{name: "rendered"}
	c := NewChain(light, rendered, nil, 25)

	text := c.Acquire(context.Background(), map[string]string{"Website": "acme.com"})
	assert.Equal(t, longText(), text)
	assert.Equal(t, 1, light.calls)
	assert.Zero(t, rendered.calls, "rendered fetcher must not run when the light fetch is long enough")
}

func TestChain_ThinPageEscalates(t *testing.T) {
	light := &fakeFetcher{name: "light", text: map[string]string{"acme.com": "just a shell"}}
	rendered := &fakeFetcher{name: "rendered", text: map[string]string{"acme.com": "rendered content here"}}
	c := NewChain(light, rendered, nil, 25)

	text := c.Acquire(context.Background(), map[string]string{"website": "acme.com"})
	assert.Equal(t, "rendered content here", text)
	assert.Equal(t, 1, light.calls)
	assert.Equal(t, 1, rendered.calls)
}

func TestChain_RenderedAcceptsShortText(t *testing.T) {
	// No minimum word count on the rendered stage.
	light := &fakeFetcher{name: "light", err: eris.New("refused")}
	rendered := &fakeFetcher{name: "rendered", text: map[string]string{"acme.com": "brief"}}
	c := NewChain(light, rendered, nil, 25)

	text := c.Acquire(context.Background(), map[string]string{"website": "acme.com"})
	assert.Equal(t, "brief", text)
}

func TestChain_FallsBackToLocator(t *testing.T) {
	light := &fakeFetcher{name: "light", text: map[string]string{"found.example.com": longText()}}
	rendered := &fakeFetcher{name: "rendered"}
	locator := &fakeLocator{url: "found.example.com"}
	c := NewChain(light, rendered, locator, 25)

	text := c.Acquire(context.Background(), map[string]string{"Name": "Acme Corp"})
	assert.Equal(t, longText(), text)
	assert.Equal(t, 1, locator.calls)
}

func TestChain_LocatorAfterFetchFailure(t *testing.T) {
	light := &fakeFetcher{name: "light", text: map[string]string{"found.example.com": longText()}}
	rendered := &fakeFetcher{name: "rendered"}
	locator := &fakeLocator{url: "found.example.com"}
	c := NewChain(light, rendered, locator, 25)

	// Website field present but both fetch stages yield nothing.
	text := c.Acquire(context.Background(), map[string]string{
		"website": "dead.example.com",
		"name":    "Acme Corp",
	})
	assert.Equal(t, longText(), text)
	assert.Equal(t, 1, locator.calls)
}

func TestChain_LocatorLogsSearchCost(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := zap.ReplaceGlobals(zap.New(core))
	defer prev()

	light := &fakeFetcher{name: "light", text: map[string]string{"found.example.com": longText()}}
	rendered := &fakeFetcher{name: "rendered"}
	locator := &fakeLocator{url: "found.example.com"}
	c := NewChain(light, rendered, locator, 25)

	c.Acquire(context.Background(), map[string]string{"name": "Acme Corp"})

	entries := logs.FilterMessage("scrape: estimated search cost").All()
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.008, entries[0].ContextMap()["usd"], 1e-12)
}

func TestChain_NilLocatorSkipsDiscovery(t *testing.T) {
	light := &fakeFetcher{name: "light"}
	rendered := &fakeFetcher{name: "rendered"}
	c := NewChain(light, rendered, nil, 25)

	text := c.Acquire(context.Background(), map[string]string{"name": "Acme Corp"})
	assert.Empty(t, text)
	assert.Zero(t, light.calls)
}

func TestChain_AllFailuresYieldEmpty(t *testing.T) {
	light := &fakeFetcher{name: "light", err: eris.New("down")}
	rendered := &fakeFetcher{name: "rendered", err: eris.New("down")}
	locator := &fakeLocator{err: eris.New("down")}
	c := NewChain(light, rendered, locator, 25)

	text := c.Acquire(context.Background(), map[string]string{
		"website": "acme.com",
		"name":    "Acme Corp",
	})
	assert.Empty(t, text)
}

func TestFieldValue_CaseInsensitive(t *testing.T) {
	fields := map[string]string{"WEBSITE": " acme.com "}
	assert.Equal(t, "acme.com", fieldValue(fields, "website"))
	assert.Empty(t, fieldValue(fields, "name"))
}

func TestWordCount(t *testing.T) {
	assert.Zero(t, wordCount(""))
	assert.Equal(t, 3, wordCount("  one\ttwo\nthree "))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://acme.com", normalizeURL("acme.com"))
	assert.Equal(t, "http://acme.com", normalizeURL("http://acme.com"))
	assert.Equal(t, "https://acme.com", normalizeURL("https://acme.com"))
}
