package cmd

import (
	"bufio"
	"encoding/json"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// progressFrame mirrors the controller's SSE event payload.
type progressFrame struct {
	PipelineID      string     `json:"pipeline_id"`
	Status          string     `json:"status"`
	CurrentStage    *string    `json:"current_stage,omitempty"`
	CompletedStages []string   `json:"completed_stages"`
	AccumulatedCost string     `json:"accumulated_cost"`
	Error           *string    `json:"error,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:   "watch [pipeline_id]",
	Short: "Stream live progress events",
	Long: `Follow progress events over a server-sent event stream. With a pipeline ID
only that pipeline's events are shown; without one, all of the tenant's
pipelines are followed. The stream runs until interrupted or, when watching
a single pipeline, until it reaches a terminal state.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pipelineID := ""
		if len(args) == 1 {
			pipelineID = args[0]
		}

		url := viper.GetString("api_url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API key not found. Please set it using the --token flag or the PIPECTL_TOKEN environment variable")
			return
		}

		client := NewClient(url, token)
		stream, err := client.StreamEvents(pipelineID)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Watch failed (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Watch failed: %v\n", err)
			}
			return
		}
		defer stream.Close()

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-sigChan
			stream.Close()
		}()

		scanner := bufio.NewScanner(stream)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var frame progressFrame
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
				continue
			}

			printFrame(cmd, frame)

			if pipelineID != "" && terminalStatus(frame.Status) {
				return
			}
		}
	},
}

func printFrame(cmd *cobra.Command, frame progressFrame) {
	stage := "-"
	if frame.CurrentStage != nil {
		stage = *frame.CurrentStage
	}

	switch {
	case frame.Error != nil:
		cmd.Printf("%s %s  %s  stage=%s  spent=$%s  error=%s\n",
			statusIcon(frame.Status), shortID(frame.PipelineID), colorizeStatus(frame.Status), stage, frame.AccumulatedCost, *frame.Error)
	default:
		cmd.Printf("%s %s  %s  stage=%s  done=%d  spent=$%s\n",
			statusIcon(frame.Status), shortID(frame.PipelineID), colorizeStatus(frame.Status), stage, len(frame.CompletedStages), frame.AccumulatedCost)
	}
}

func terminalStatus(status string) bool {
	switch status {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
