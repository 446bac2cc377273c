package cmd

import (
	"errors"
	"fmt"

	"github.com/gatekey-io/gatekey/api"
	"github.com/spf13/cobra"
)

var machineAuthCmd = &cobra.Command{
	Use:     "machine-auth",
	Short:   "Manage machine authentication configurations",
	Aliases: []string{"machine"},
}

var machineSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace an owner's machine authentication configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			return errors.New("--owner flag is required")
		}
		tokenTTL, _ := cmd.Flags().GetInt64("token-ttl")
		maxTTL, _ := cmd.Flags().GetInt64("max-ttl")
		usesLimit, _ := cmd.Flags().GetInt64("uses-limit")
		trustedIPs, _ := cmd.Flags().GetStringSlice("trusted-ips")
		serviceAccounts, _ := cmd.Flags().GetStringSlice("service-accounts")
		projects, _ := cmd.Flags().GetStringSlice("projects")
		active, _ := cmd.Flags().GetBool("active")

		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.UpsertMachineConfig(cmd.Context(), api.MachineAuthConfigRequest{
			OwnerID:                 owner,
			AccessTokenTTL:          tokenTTL,
			AccessTokenMaxTTL:       maxTTL,
			AccessTokenNumUsesLimit: usesLimit,
			AccessTokenTrustedIPs:   trustedIPs,
			AllowedServiceAccounts:  serviceAccounts,
			AllowedProjects:         projects,
			Active:                  active,
		})
		if err != nil {
			return fmt.Errorf("failed to store machine config: %w", err)
		}
		fmt.Println("Machine authentication configuration stored:")
		return printYAML(cfg)
	},
}

var machineGetCmd = &cobra.Command{
	Use:   "get [OWNER_ID]",
	Short: "Get an owner's machine authentication configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.GetMachineConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get machine config: %w", err)
		}
		return printYAML(cfg)
	},
}

var machineDescribeCmd = &cobra.Command{
	Use:   "describe [CONFIG_ID]",
	Short: "Get a configuration by its ID, any method type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.GetConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get config: %w", err)
		}
		return printYAML(cfg)
	},
}

var machineActivateCmd = &cobra.Command{
	Use:   "activate [CONFIG_ID]",
	Short: "Activate a machine authentication configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.ActivateMachineConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to activate machine config: %w", err)
		}
		fmt.Printf("Machine configuration %s activated.\n", cfg.ID)
		return nil
	},
}

var machineDeactivateCmd = &cobra.Command{
	Use:   "deactivate [CONFIG_ID]",
	Short: "Deactivate a machine configuration and revoke its outstanding tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.DeactivateMachineConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to deactivate machine config: %w", err)
		}
		fmt.Printf("Machine configuration %s deactivated, outstanding tokens revoked.\n", cfg.ID)
		return nil
	},
}

var machineDeleteCmd = &cobra.Command{
	Use:   "delete [CONFIG_ID]",
	Short: "Delete a machine authentication configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		if err := apiC.DeleteMachineConfig(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete machine config: %w", err)
		}
		fmt.Printf("Machine configuration %s deleted.\n", args[0])
		return nil
	},
}

var methodsCmd = &cobra.Command{
	Use:     "methods",
	Short:   "Owner-level operations across all auth method configurations",
	Aliases: []string{"auth-methods"},
}

var methodsListCmd = &cobra.Command{
	Use:   "list [OWNER_ID]",
	Short: "List every configuration an owner has",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		configs, err := apiC.ListConfigs(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list configs: %w", err)
		}
		if len(configs) == 0 {
			fmt.Println("No configurations found.")
			return nil
		}
		return printYAML(configs)
	},
}

var methodsPurgeCmd = &cobra.Command{
	Use:   "purge [OWNER_ID]",
	Short: "Delete every configuration an owner has and revoke their tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		if err := apiC.DeleteOwner(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to purge owner: %w", err)
		}
		fmt.Printf("All configurations for owner %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(machineAuthCmd)
	machineAuthCmd.AddCommand(machineSetCmd)
	machineAuthCmd.AddCommand(machineGetCmd)
	machineAuthCmd.AddCommand(machineDescribeCmd)
	machineAuthCmd.AddCommand(machineActivateCmd)
	machineAuthCmd.AddCommand(machineDeactivateCmd)
	machineAuthCmd.AddCommand(machineDeleteCmd)

	rootCmd.AddCommand(methodsCmd)
	methodsCmd.AddCommand(methodsListCmd)
	methodsCmd.AddCommand(methodsPurgeCmd)

	machineSetCmd.Flags().String("owner", "", "Owner (tenant) the configuration belongs to")
	machineSetCmd.Flags().Int64("token-ttl", 0, "Access token TTL in seconds (0 uses the server default)")
	machineSetCmd.Flags().Int64("max-ttl", 0, "Hard cap on token lifetime in seconds (0 uses the server default)")
	machineSetCmd.Flags().Int64("uses-limit", 0, "Number of tokens that may be minted (0 means unlimited)")
	machineSetCmd.Flags().StringSlice("trusted-ips", nil, "CIDR blocks clients must authenticate from")
	machineSetCmd.Flags().StringSlice("service-accounts", nil, "Service account identities allowed to authenticate")
	machineSetCmd.Flags().StringSlice("projects", nil, "Projects allowed to authenticate")
	machineSetCmd.Flags().Bool("active", true, "Whether the configuration is active immediately")
}
