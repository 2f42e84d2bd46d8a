package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-mimic/api/schemas"
	"github.com/xkilldash9x/scalpel-mimic/internal/browser/evasions"
	"github.com/xkilldash9x/scalpel-mimic/internal/config"
)

// addEvasionFlags registers the flags that override the evasions section of
// the configuration.
func addEvasionFlags(cmd *cobra.Command) {
	cmd.Flags().String("profile", "", "embedded plugin profile ("+joinProfiles()+")")
	cmd.Flags().String("dataset", "", "dataset file (.yaml or .json); overrides --profile")
	cmd.Flags().String("back-reference", "", "enabledPlugin mode: identity or proxy")
	cmd.Flags().StringSlice("keyboard", nil, "KeyboardLayoutMap overrides as Code=char pairs")
}

// applyEvasionFlags copies explicitly set flags into cfg and revalidates it.
func applyEvasionFlags(cmd *cobra.Command, cfg config.Interface) error {
	flags := cmd.Flags()
	if flags.Changed("profile") {
		p, _ := flags.GetString("profile")
		cfg.SetEvasionsProfile(p)
		cfg.SetEvasionsDatasetFile("")
	}
	if flags.Changed("dataset") {
		f, _ := flags.GetString("dataset")
		cfg.SetEvasionsDatasetFile(f)
	}
	if flags.Changed("back-reference") {
		m, _ := flags.GetString("back-reference")
		cfg.SetEvasionsBackReference(m)
	}
	if flags.Changed("keyboard") {
		k, _ := flags.GetStringSlice("keyboard")
		cfg.SetEvasionsKeyboard(k)
	}
	ev := cfg.Evasions()
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid evasions settings: %w", err)
	}
	return nil
}

// loadDataset resolves the configured dataset. A dataset file wins over the
// embedded profile.
func loadDataset(ev config.EvasionsConfig) (*schemas.Dataset, error) {
	if ev.DatasetFile != "" {
		return evasions.LoadDatasetFile(ev.DatasetFile)
	}
	return evasions.LoadProfile(ev.Profile)
}

// evasionOptions converts the configuration into installer options.
func evasionOptions(ev config.EvasionsConfig) (evasions.Options, error) {
	mode, err := evasions.ParseBackReference(ev.BackReference)
	if err != nil {
		return evasions.Options{}, err
	}
	layout, err := ev.Layout()
	if err != nil {
		return evasions.Options{}, err
	}
	return evasions.Options{BackReference: mode, Keyboard: schemas.KeyboardLayout(layout)}, nil
}

func joinProfiles() string { return strings.Join(evasions.Profiles(), ", ") }
