package cmd

import (
	"fmt"
	"os"

	"github.com/gatekey-io/gatekey/cmd/gatekeyctl/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "gatekeyctl is a CLI tool to interact with the gatekey API",
	Long: `A command-line interface for managing SAML and machine authentication
configurations and for minting, renewing, verifying, and revoking machine
access tokens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
}
