package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's pipelines",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("api_url"), viper.GetString("token"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		pipelines, err := client.ListPipelines(limit, offset)
		if err != nil {
			cmd.Printf("Error fetching pipelines: %s\n", err)
			os.Exit(1)
		}

		if len(pipelines) == 0 {
			if offset > 0 {
				cmd.Println("No more pipelines found.")
			} else {
				cmd.Println("No pipelines found.")
			}
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tSPENT\tCREATED")
		for _, p := range pipelines {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t$%s\t%s\n",
				p.ID, p.Status, len(p.CompletedStages), len(p.StageSequence), p.ActualCost, p.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

func init() {
	listCmd.Flags().Int("limit", 50, "Maximum pipelines to fetch")
	listCmd.Flags().Int("offset", 0, "Pagination offset")
	rootCmd.AddCommand(listCmd)
}
