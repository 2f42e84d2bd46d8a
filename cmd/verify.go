package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/jsexec"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/probe"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/realm/gojarealm"
	"github.com/xkilldash9x/scalpel-mimic/internal/observability"
)

// verification is one dataset checked in its own runtime.
type verification struct {
	label  string
	ds     *schemas.Dataset
	report *probe.Report
}

func newVerifyCmd() *cobra.Command {
	var all, native bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Install the evasions into a stand-in browser runtime and run the detection probes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyEvasionFlags(cmd, cfg); err != nil {
				return err
			}
			opts, err := evasionOptions(cfg.Evasions())
			if err != nil {
				return err
			}
			logger := observability.GetLogger().Named("verify")

			var runs []*verification
			if all {
				for _, name := range evasions.Profiles() {
					ds, err := evasions.LoadProfile(name)
					if err != nil {
						return err
					}
					runs = append(runs, &verification{label: name, ds: ds})
				}
			} else {
				ds, err := loadDataset(cfg.Evasions())
				if err != nil {
					return err
				}
				runs = append(runs, &verification{label: ds.Name, ds: ds})
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			for _, run := range runs {
				g.Go(func() error {
					report, err := verifyDataset(ctx, run.ds, opts, native, logger.With(zap.String("dataset", run.label)))
					if err != nil {
						return fmt.Errorf("verifying %s: %w", run.label, err)
					}
					run.report = report
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for _, run := range runs {
				failed += printReport(cmd.OutOrStdout(), fmt.Sprintf("%s (%s)", run.label, opts.BackReference), run.report)
			}
			if failed > 0 {
				return fmt.Errorf("%d probe(s) failed", failed)
			}
			return nil
		},
	}
	addEvasionFlags(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "verify every embedded profile")
	cmd.Flags().BoolVar(&native, "native", false, "install through the engine directly instead of evaluating the rendered script")
	return cmd
}

// verifyDataset installs ds into a fresh runtime carrying the headless Chrome
// surface and runs the probe battery against it.
func verifyDataset(ctx context.Context, ds *schemas.Dataset, opts evasions.Options, native bool, logger *zap.Logger) (*probe.Report, error) {
	rt, err := jsexec.NewRuntime(logger, realm.ChromeSurface())
	if err != nil {
		return nil, err
	}

	var ps *evasions.PatchSet
	if native {
		err = rt.Do(ctx, func(rl *gojarealm.Realm) error {
			ps = evasions.NewInstaller(rl, logger, opts).Install(ds)
			return nil
		})
	} else {
		var script string
		script, ps = evasions.Render(ds, logger, opts)
		_, err = rt.ExecuteScript(ctx, script, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("installing evasions: %w", err)
	}
	return probe.Run(ctx, rt, probe.Battery(ps, opts), logger)
}

// printReport writes a summary of report and returns the number of failures.
func printReport(w io.Writer, label string, report *probe.Report) int {
	status := "PASS"
	if report.Failed > 0 {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s %s: %d/%d probes\n", status, label, report.Passed, len(report.Results))
	for _, f := range report.Failures() {
		if f.Err != nil {
			fmt.Fprintf(w, "  - %s: %v\n", f.Probe.Name, f.Err)
			continue
		}
		fmt.Fprintf(w, "  - %s: got %v, want %v\n", f.Probe.Name, f.Got, f.Probe.Want)
	}
	return report.Failed
}
