package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [pipeline_id]",
	Short: "Cancel a queued or running pipeline",
	Long: `Request cancellation of a pipeline. Completed stages keep their charges;
the in-flight stage is abandoned without charge.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipelineID := args[0]
		reason, _ := cmd.Flags().GetString("reason")

		url := viper.GetString("api_url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the PIPECTL_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		if err := client.CancelPipeline(pipelineID, reason); err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Cancel failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Cancel failed: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Cancellation requested for %s\n", pipelineID)
	},
}

func init() {
	cancelCmd.Flags().String("reason", "", "Reason recorded on the cancelled pipeline (optional)")
	rootCmd.AddCommand(cancelCmd)
}
