package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentplane/internal/money"
	"contentplane/pkg/api"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new content pipeline",
	Long: `Submit a new content pipeline, either from a named recipe or from an
explicit comma-separated stage sequence.

Example:
  pipectl submit --recipe full --keywords "espresso,grinders"
  pipectl submit --stages topic_analysis,generation --ceiling 25.00 --word-count 1200`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		recipe, _ := flags.GetString("recipe")
		stages, _ := flags.GetStringSlice("stages")
		ceiling, _ := flags.GetString("ceiling")
		keywords, _ := flags.GetStringSlice("keywords")
		wordCount, _ := flags.GetInt("word-count")
		complianceFlags, _ := flags.GetStringSlice("compliance-flags")
		publishTarget, _ := flags.GetString("publish-target")

		url := viper.GetString("api_url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the PIPECTL_TOKEN environment variable")
			return
		}

		if recipe == "" && len(stages) == 0 {
			cmd.Println("Error: either --recipe or --stages is required")
			return
		}

		var budgetCeiling money.Amount
		if ceiling != "" {
			parsed, err := money.Parse(ceiling)
			if err != nil {
				cmd.Printf("Error: invalid --ceiling %q: %v\n", ceiling, err)
				return
			}
			budgetCeiling = parsed
		}

		client := NewClient(url, token)
		req := api.SubmitPipelineRequest{
			Stages:        stages,
			Recipe:        recipe,
			BudgetCeiling: budgetCeiling,
			Config: api.StageConfig{
				Keywords:        keywords,
				TargetWordCount: wordCount,
				ComplianceFlags: complianceFlags,
				PublishTarget:   publishTarget,
			},
		}

		result, err := client.SubmitPipeline(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Submit failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Submit failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Pipeline submitted!\nID: %s\nStatus: %s\nStages: %s\nEstimated cost: $%s\n",
			result.ID, result.Status, strings.Join(result.StageSequence, " -> "), result.EstimatedCost)
	},
}

func init() {
	flags := submitCmd.Flags()
	flags.StringP("recipe", "r", "", "Named stage recipe, e.g. full")
	flags.StringSliceP("stages", "s", []string{}, "Explicit stage sequence, e.g. topic_analysis,generation")
	flags.String("ceiling", "", "Per-run spend ceiling in dollars, e.g. 25.00 (default: tenant's remaining budget)")
	flags.StringSliceP("keywords", "k", []string{}, "Seed keywords for discovery and analysis stages")
	flags.Int("word-count", 0, "Target word count for the generation stage")
	flags.StringSlice("compliance-flags", []string{}, "Policy flags for the compliance check stage")
	flags.String("publish-target", "", "Destination channel for the publish stage")

	rootCmd.AddCommand(submitCmd)
}
