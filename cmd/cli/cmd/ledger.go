package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentplane/internal/money"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List the tenant's cost ledger",
	Long:  `List the immutable charge records accumulated by the tenant's pipelines, newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(viper.GetString("api_url"), viper.GetString("token"))

		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		entries, err := client.ListLedger(limit, offset)
		if err != nil {
			cmd.Printf("Error fetching ledger: %s\n", err)
			os.Exit(1)
		}

		if len(entries) == 0 {
			if offset > 0 {
				cmd.Println("No more ledger entries.")
			} else {
				cmd.Println("No ledger entries yet.")
			}
			return
		}

		var total money.Amount
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tPIPELINE\tSTAGE\tAMOUNT\tWHEN\tDESCRIPTION")
		for _, e := range entries {
			total += e.Amount
			fmt.Fprintf(w, "%d\t%s\t%s\t$%s\t%s\t%s\n",
				e.ID, shortID(e.PipelineID), e.Stage, e.Amount, e.CreatedAt.Format(time.RFC3339), e.Description)
		}
		w.Flush()

		cmd.Printf("\nPage total: $%s (%d entries)\n", total, len(entries))
	},
}

func init() {
	ledgerCmd.Flags().Int("limit", 50, "Maximum entries to fetch")
	ledgerCmd.Flags().Int("offset", 0, "Pagination offset")
	rootCmd.AddCommand(ledgerCmd)
}
