package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"contentplane/internal/money"
	"contentplane/pkg/api"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants (admin)",
	Long:  `Administrative tenant operations. These require the controller admin secret as the token, not a tenant API key.`,
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new tenant",
	Long: `Provision a new tenant and print its API key.

The key is shown exactly once; only its hash is stored server-side.

Example:
  pipectl tenant create --name "acme-content" --budget 500.00 --max-concurrent 3 -t $ADMIN_SECRET`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		budget, _ := flags.GetString("budget")
		maxConcurrent, _ := flags.GetInt("max-concurrent")
		rateLimit, _ := flags.GetFloat64("rate-limit")
		burst, _ := flags.GetInt("rate-limit-burst")

		url := viper.GetString("api_url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("Admin secret not found. Please set it using the --token flag or the PIPECTL_TOKEN environment variable")
			return
		}

		if name == "" {
			cmd.Println("Error: --name is required")
			return
		}

		monthlyBudget, err := money.Parse(budget)
		if err != nil {
			cmd.Printf("Error: invalid --budget %q: %v\n", budget, err)
			return
		}

		client := NewClient(url, token)
		req := api.CreateTenantRequest{
			Name:           name,
			MonthlyBudget:  monthlyBudget,
			MaxConcurrent:  maxConcurrent,
			RateLimit:      rateLimit,
			RateLimitBurst: burst,
		}

		result, err := client.CreateTenant(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Tenant created!\nID: %s\nName: %s\nBudget: $%s\nAPI key: %s\n\nStore this key now; it cannot be retrieved again.\n",
			result.ID, result.Name, result.Budget, result.ApiKey)
	},
}

func init() {
	flags := tenantCreateCmd.Flags()
	flags.StringP("name", "n", "", "Tenant name (required)")
	flags.StringP("budget", "b", "100.00", "Monthly budget in dollars")
	flags.Int("max-concurrent", 1, "Concurrent pipeline cap")
	flags.Float64("rate-limit", 0, "API requests per second (0 = unlimited)")
	flags.Int("rate-limit-burst", 0, "API request burst size")

	tenantCmd.AddCommand(tenantCreateCmd)
	rootCmd.AddCommand(tenantCmd)
}
