package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/probe"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/stealth"
	"github.com/xkilldash9x/scalpel-mimic/internal/config"
	"github.com/xkilldash9x/scalpel-mimic/internal/observability"
)

const defaultNavigationTimeout = 90 * time.Second

func newLaunchCmd() *cobra.Command {
	var noProbe, hold bool

	cmd := &cobra.Command{
		Use:   "launch [url]",
		Short: "Start Chrome with the evasions injected and probe the loaded page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyEvasionFlags(cmd, cfg); err != nil {
				return err
			}
			logger := observability.GetLogger().Named("launch")

			url := "about:blank"
			if len(args) == 1 {
				url = args[0]
			}

			ds, err := loadDataset(cfg.Evasions())
			if err != nil {
				return err
			}
			opts, err := evasionOptions(cfg.Evasions())
			if err != nil {
				return err
			}
			script, ps := evasions.Render(ds, logger, opts)

			allocCtx, cancelAlloc := chromedp.NewExecAllocator(cmd.Context(), allocatorOptions(cfg.Browser())...)
			defer cancelAlloc()
			contextOpts := []chromedp.ContextOption{chromedp.WithLogf(logger.Sugar().Infof)}
			if cfg.Browser().Debug {
				contextOpts = append(contextOpts, chromedp.WithDebugf(logger.Sugar().Debugf))
			}
			browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, contextOpts...)
			defer cancelBrowser()

			if err := chromedp.Run(browserCtx, stealth.Apply(script, persona(cfg.Persona()), logger)); err != nil {
				return fmt.Errorf("preparing browser: %w", err)
			}

			timeout := cfg.Browser().NavigationTimeout
			if timeout <= 0 {
				timeout = defaultNavigationTimeout
			}
			navCtx, cancelNav := context.WithTimeout(browserCtx, timeout)
			defer cancelNav()
			if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
				return fmt.Errorf("navigating to %s: %w", url, err)
			}
			logger.Info("Page loaded with evasions.", zap.String("url", url), zap.String("patch_set", ps.ID.String()))

			if !noProbe {
				report, err := probe.Run(browserCtx, stealth.PageEvaluator{}, probe.Battery(ps, opts), logger)
				if err != nil {
					return err
				}
				if failed := printReport(cmd.OutOrStdout(), url, report); failed > 0 && !hold {
					return fmt.Errorf("%d probe(s) failed", failed)
				}
			}

			if hold {
				logger.Info("Holding the browser open until interrupted.")
				<-cmd.Context().Done()
			}
			return nil
		},
	}
	addEvasionFlags(cmd)
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip the detection probes")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep the browser open until interrupted")
	return cmd
}

// allocatorOptions translates the browser configuration into chromedp
// allocator options.
func allocatorOptions(b config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", b.Headless))
	if b.DisableCache {
		opts = append(opts, chromedp.Flag("disk-cache-size", "1"), chromedp.Flag("disable-application-cache", true))
	}
	if b.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if b.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.ExecPath))
	}
	if w, h := b.Viewport["width"], b.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for _, arg := range b.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func persona(p config.PersonaConfig) stealth.Persona {
	return stealth.Persona{UserAgent: p.UserAgent, Languages: p.Languages, Timezone: p.Timezone, Locale: p.Locale}
}
