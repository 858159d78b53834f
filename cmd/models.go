package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	modelsJSON bool
	modelsAll  bool
	modelsPick bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the offered models",
	Long: `List the models offered by the current configuration.

The offered list comes from model_options and is always a subset of the
models the backend accepts.

Examples:
  docuchat models                       # offered models, default marked
  docuchat models --all                 # every model the backend accepts
  docuchat models --pick                # choose the default and save it
  docuchat models --json                # output as JSON`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	modelsCmd.Flags().BoolVar(&modelsAll, "all", false, "List every accepted model, not just the offered ones")
	modelsCmd.Flags().BoolVar(&modelsPick, "pick", false, "Pick the default model interactively and save it")
}

type modelEntry struct {
	ID      string `json:"id"`
	Offered bool   `json:"offered"`
	Default bool   `json:"default"`
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if modelsPick {
		return pickDefaultModel(cmd.OutOrStdout(), cfg)
	}

	entries := listModels(cfg, modelsAll)
	if modelsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	printModels(cmd.OutOrStdout(), ui.DefaultStyles(), entries)
	return nil
}

func listModels(cfg *config.Config, all bool) []modelEntry {
	ids := cfg.Models
	if all {
		ids = models.Allowed
	}
	entries := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, modelEntry{
			ID:      id,
			Offered: slices.Contains(cfg.Models, id),
			Default: id == cfg.DefaultModel,
		})
	}
	return entries
}

func printModels(w io.Writer, styles *ui.Styles, entries []modelEntry) {
	for _, e := range entries {
		switch {
		case e.Default:
			fmt.Fprintf(w, "%s %s %s\n", styles.Success.Render(ui.EnabledIcon), e.ID, styles.Muted.Render("(default)"))
		case e.Offered:
			fmt.Fprintf(w, "%s %s\n", styles.Muted.Render(ui.DisabledIcon), e.ID)
		default:
			fmt.Fprintf(w, "%s %s %s\n", styles.Muted.Render(ui.DisabledIcon), e.ID, styles.Muted.Render("(not offered)"))
		}
	}
}

func pickDefaultModel(w io.Writer, cfg *config.Config) error {
	chosen, err := ui.SelectModel(cfg.Models, cfg.DefaultModel)
	if err != nil {
		return err
	}
	cfg.DefaultModel = models.Sanitize(chosen)
	if err := config.Update(configPath, map[string]any{"default_model": cfg.DefaultModel}); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(w, "Default model set to %s\n", cfg.DefaultModel)
	return nil
}
