package cmd

import (
	"strings"

	"github.com/docuchat/docuchat/internal/models"
	"github.com/spf13/cobra"
)

// ModelFlagCompletion handles --model flag completion
func ModelFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var completions []string
	for _, id := range models.Allowed {
		if strings.HasPrefix(id, toComplete) {
			completions = append(completions, id)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

func registerModelFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "model", "m", "", "Model to use (fuzzy matched against the offered models)")
	if err := cmd.RegisterFlagCompletionFunc("model", ModelFlagCompletion); err != nil {
		panic("failed to register model completion: " + err.Error())
	}
}
