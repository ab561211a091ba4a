package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentplane/pkg/api"
)

var showExecutions bool

var statusCmd = &cobra.Command{
	Use:   "status [pipeline_id]",
	Short: "Get status of a pipeline",
	Long:  `Retrieve detailed status for a pipeline, including its current state (queued, running, completed, failed, cancelled), stage progress, and cost so far.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipelineID := args[0]

		url := viper.GetString("api_url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the PIPECTL_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		pipeline, err := client.GetPipeline(pipelineID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		printPipeline(cmd, *pipeline)

		if showExecutions {
			executions, err := client.ListStageExecutions(pipelineID)
			if err != nil {
				cmd.Printf("Error fetching stage executions: %v\n", err)
				return
			}
			printExecutions(cmd, executions)
		}
	},
}

func printPipeline(cmd *cobra.Command, p api.PipelineResponse) {
	icon := statusIcon(p.Status)
	cmd.Printf("%s %sPipeline Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, p.ID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(p.Status))

	// Stage progress, e.g. 2/4 with the running stage highlighted
	cmd.Printf("%sStages:%s      %d/%d", colorDim, colorReset, len(p.CompletedStages), len(p.StageSequence))
	if p.CurrentStage != nil {
		cmd.Printf(" %s(running: %s)%s", colorYellow, *p.CurrentStage, colorReset)
	}
	cmd.Println()
	cmd.Printf("%sSequence:%s    %s\n", colorDim, colorReset, strings.Join(p.StageSequence, " -> "))

	cmd.Printf("%sEstimated:%s   $%s\n", colorDim, colorReset, p.EstimatedCost)
	cmd.Printf("%sSpent:%s       $%s\n", colorDim, colorReset, p.ActualCost)
	cmd.Printf("%sCeiling:%s     $%s\n", colorDim, colorReset, p.BudgetCeiling)

	if p.Error != nil {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, *p.Error, colorReset)
	}
	if p.ResultRef != nil {
		cmd.Printf("%sResult:%s      %s\n", colorDim, colorReset, *p.ResultRef)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(p.StartedAt))

	if p.StartedAt != nil && p.CompletedAt != nil {
		duration := p.CompletedAt.Sub(*p.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(p.CompletedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(p.CompletedAt))
	}
}

func printExecutions(cmd *cobra.Command, executions []api.StageExecutionResponse) {
	if len(executions) == 0 {
		cmd.Println("\nNo stage executions yet.")
		return
	}

	cmd.Println()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STAGE\tATTEMPT\tSTATUS\tCOST\tERROR")
	for _, e := range executions {
		errMsg := ""
		if e.Error != nil {
			errMsg = *e.Error
			if len(errMsg) > 50 {
				errMsg = errMsg[:47] + "..."
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t$%s\t%s\n", e.Stage, e.Attempt, e.Status, e.Cost, errMsg)
	}
	w.Flush()
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "cancelled":
		return colorRed + "⊘" + colorReset
	case "running":
		return colorYellow + "⏳" + colorReset
	case "queued":
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	switch status {
	case "completed":
		return colorGreen + status + colorReset
	case "failed", "cancelled":
		return colorRed + status + colorReset
	case "running":
		return colorYellow + status + colorReset
	case "queued":
		return colorCyan + status + colorReset
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s ago)", t.Format(time.RFC3339), formatDuration(time.Since(*t)))
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().BoolVarP(&showExecutions, "executions", "e", false, "Also list per-stage execution attempts")
	rootCmd.AddCommand(statusCmd)
}
