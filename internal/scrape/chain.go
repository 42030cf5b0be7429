package scrape

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/cost"
)

// Locator discovers a candidate website URL from a company name.
type Locator interface {
	FindWebsite(ctx context.Context, companyName string) (string, error)
}

// Chain sequences text acquisition for a lead: a cheap HTTP fetch first,
// escalating to the rendered fetcher when the page looks like an empty JS
// shell, then the same two-stage fetch against a URL discovered from the
// company name. Every failure converts to "no result"; a lead with no
// reachable text is a normal outcome.
type Chain struct {
	light    Fetcher
	rendered Fetcher
	locator  Locator
	minWords int
	costCalc *cost.Calculator
}

// NewChain creates a Chain. locator may be nil, which disables discovery
// by company name.
func NewChain(light, rendered Fetcher, locator Locator, minWords int) *Chain {
	return &Chain{
		light:    light,
		rendered: rendered,
		locator:  locator,
		minWords: minWords,
		costCalc: cost.NewCalculator(cost.DefaultRates()),
	}
}

// Acquire returns the webpage text for a lead's field map, or "" when
// every strategy came up empty.
func (c *Chain) Acquire(ctx context.Context, fields map[string]string) string {
	strategies := []func(context.Context) string{
		c.fromWebsiteField(fields),
		c.fromLocatedURL(fields),
	}
	for _, s := range strategies {
		if text := s(ctx); text != "" {
			return text
		}
	}
	return ""
}

// fromWebsiteField fetches the lead's own website field.
func (c *Chain) fromWebsiteField(fields map[string]string) func(context.Context) string {
	return func(ctx context.Context) string {
		site := fieldValue(fields, "website")
		if site == "" {
			return ""
		}
		return c.twoStage(ctx, site)
	}
}

// fromLocatedURL discovers a URL from the company name and fetches it.
func (c *Chain) fromLocatedURL(fields map[string]string) func(context.Context) string {
	return func(ctx context.Context) string {
		if c.locator == nil {
			return ""
		}
		name := fieldValue(fields, "name")
		if name == "" {
			return ""
		}
		url, err := c.locator.FindWebsite(ctx, name)
		if err != nil {
			zap.L().Debug("scrape: website lookup failed",
				zap.String("company", name),
				zap.Error(err),
			)
			return ""
		}
		if est := c.costCalc.Search(1); est > 0 {
			zap.L().Debug("scrape: estimated search cost", zap.Float64("usd", est))
		}
		if url == "" {
			return ""
		}
		return c.twoStage(ctx, url)
	}
}

// twoStage runs the light fetch and escalates to the rendered fetcher
// when the result is missing or below the word-count threshold. The
// threshold distinguishes "page loaded but is a JS shell" from real
// content; the rendered result is accepted whenever non-empty.
func (c *Chain) twoStage(ctx context.Context, url string) string {
	text, err := c.light.Fetch(ctx, url)
	if err == nil && wordCount(text) >= c.minWords {
		return text
	}
	if err != nil {
		zap.L().Debug("scrape: light fetch failed, escalating",
			zap.String("url", url),
			zap.Error(err),
		)
	}

	text, err = c.rendered.Fetch(ctx, url)
	if err != nil {
		zap.L().Debug("scrape: rendered fetch failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return ""
	}
	return text
}

// fieldValue looks up a field by case-insensitive key match.
func fieldValue(fields map[string]string, key string) string {
	for k, v := range fields {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
