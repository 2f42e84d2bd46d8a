package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/observability"
)

func newRenderCmd() *cobra.Command {
	var outFile string
	var strict bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the evasions script to evaluate in a page before any page script",
		Long: `Render records the plugin and mime type installation for the configured
dataset and prints it as a self-contained script. Inject it with
Page.addScriptToEvaluateOnNewDocument or any equivalent hook.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := applyEvasionFlags(cmd, cfg); err != nil {
				return err
			}
			logger := observability.GetLogger().Named("render")

			ds, err := loadDataset(cfg.Evasions())
			if err != nil {
				return err
			}
			opts, err := evasionOptions(cfg.Evasions())
			if err != nil {
				return err
			}
			if issues := ds.Lint(); len(issues) > 0 {
				for _, issue := range issues {
					logger.Warn("Dataset lint issue.", zap.String("dataset", ds.Name), zap.String("issue", issue))
				}
				if strict {
					return fmt.Errorf("dataset %q is not clean: %s", ds.Name, strings.Join(issues, "; "))
				}
			}

			script, ps := evasions.Render(ds, logger, opts)
			for _, s := range ps.Skipped {
				logger.Warn("Dataset entry skipped.", zap.String("stage", string(s.Stage)), zap.String("target", s.Target), zap.Error(s.Err))
			}
			if strict {
				if err := ps.Err(); err != nil {
					return fmt.Errorf("dataset %q is not clean: %w", ps.Dataset, err)
				}
			}

			if outFile == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), script)
				return err
			}
			if err := os.WriteFile(outFile, []byte(script), 0o644); err != nil {
				return fmt.Errorf("writing script: %w", err)
			}
			logger.Info("Evasions script written.", zap.String("file", outFile), zap.Int("bytes", len(script)), zap.Int("patches", len(ps.Patches)))
			return nil
		},
	}
	addEvasionFlags(cmd)
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write the script to a file instead of stdout")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the dataset has lint issues or any entry had to be skipped")
	return cmd
}
