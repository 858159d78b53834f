package cmd

import (
	"fmt"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the effective configuration: file values merged with
DOCUCHAT_* environment overrides and defaults. The OpenAI key is omitted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			p, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config file interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := loadConfig()
		if err != nil {
			return err
		}
		cfg, err := ui.RunSetupWizard(base)
		if err != nil {
			return err
		}

		existed := config.Exists(configPath)
		if err := config.Update(configPath, wizardChanges(cfg)); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		styles := ui.DefaultStyles()
		path := configPath
		if path == "" {
			path, _ = config.GetConfigPath()
		}
		verb := "created"
		if existed {
			verb = "updated"
		}
		fmt.Fprintln(cmd.OutOrStdout(), styles.FormatResult(true, "Config "+verb+" at "+path))
		fmt.Fprintln(cmd.OutOrStdout(), "Streaming: "+styles.FormatEnabled(cfg.Features.Streaming))
		return nil
	},
}

// wizardChanges is the subset of the config the setup wizard edits. Only
// these keys are written; the rest of the file is left alone.
func wizardChanges(cfg *config.Config) map[string]any {
	return map[string]any{
		"api_base":      cfg.APIBase,
		"enable_ws":     cfg.Features.Streaming,
		"ws_endpoint":   cfg.WSEndpoint,
		"default_model": cfg.DefaultModel,
	}
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
