package stealth

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Persona defines the browser characteristics to emulate alongside the
// injected evasions. Empty fields leave the browser's own value in place.
type Persona struct {
	UserAgent string
	Languages []string
	Timezone  string
	Locale    string
}

// DefaultPersona provides a realistic default browser profile.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/Los_Angeles",
	Locale:    "en-US",
}

// Apply constructs the Chrome DevTools Protocol actions that register script
// to run in every new document before any page script, and apply the persona.
// It must run before the first navigation.
func Apply(script string, p Persona, logger *zap.Logger) chromedp.Tasks {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.Int("scriptBytes", len(script)),
	)

	var tasks chromedp.Tasks
	if p.UserAgent != "" {
		tasks = append(tasks, emulation.SetUserAgentOverride(p.UserAgent).WithAcceptLanguage(acceptLanguage(p.Languages)))
	}
	if script != "" {
		// AddScriptToEvaluateOnNewDocument returns an identifier as well, so it
		// needs an ActionFunc wrapper to satisfy chromedp.Action.
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}))
	} else {
		logger.Warn("No evasions script to inject; navigator.plugins keeps its headless value.")
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if header := acceptLanguage(p.Languages); header != "" {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": header}))
	}
	return tasks
}

// acceptLanguage renders languages as an Accept-Language value with
// descending quality weights.
func acceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if lang == "" {
			continue
		}
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// PageEvaluator evaluates expressions in the page of a chromedp context. It
// satisfies probe.Evaluator.
type PageEvaluator struct{}

// Evaluate runs expr in the current page. ctx must carry a chromedp target.
func (PageEvaluator) Evaluate(ctx context.Context, expr string) (interface{}, error) {
	var result interface{}
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &result)); err != nil {
		return nil, fmt.Errorf("evaluating in page: %w", err)
	}
	return result, nil
}
