// Package scrape acquires webpage text for leads through a chained
// fallback of fetch strategies.
package scrape

import (
	"context"
	"strings"
)

// Fetcher retrieves the visible text of a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Name() string
}

// normalizeURL defaults the scheme to https when none is present.
func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http") {
		return "https://" + url
	}
	return url
}

// wordCount counts whitespace-separated words in s.
func wordCount(s string) int {
	return len(strings.Fields(s))
}
