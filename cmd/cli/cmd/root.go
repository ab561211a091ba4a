package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pipectl",
	Short: "Pipectl is a command line tool for interacting with the contentplane platform",
	Long: `pipectl is the command-line interface for the ContentPlane pipeline orchestrator.

ContentPlane provides a multi-tenant platform for running content production
pipelines: ordered sequences of agent stages (competitor discovery, topic
analysis, generation, compliance checking, publishing) with per-tenant budget
enforcement and concurrency limits.

Common workflows:

  Submit a pipeline from a recipe:
    pipectl submit --recipe full --keywords "espresso,grinders"

  Submit an explicit stage sequence with a spend ceiling:
    pipectl submit --stages topic_analysis,generation --ceiling 25.00

  Check pipeline status and stage attempts:
    pipectl status <pipeline-id>

  Follow progress events live:
    pipectl watch <pipeline-id>

  Cancel a running pipeline:
    pipectl cancel <pipeline-id> --reason "wrong keywords"

  Inspect this month's charges:
    pipectl ledger

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    PIPECTL_API_URL    API endpoint (default: http://localhost:7070)
    PIPECTL_TOKEN      Tenant API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".pipectl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".pipectl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "PIPECTL_VARNAME"
	viper.SetEnvPrefix("PIPECTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pipectl.yaml)")

	rootCmd.PersistentFlags().String("api_url", "http://localhost:7070", "ContentPlane Controller URL")
	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api_url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
