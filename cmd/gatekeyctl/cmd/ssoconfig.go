package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/gatekey-io/gatekey/api"
	"github.com/gatekey-io/gatekey/cmd/gatekeyctl/client"
	"github.com/gatekey-io/gatekey/cmd/gatekeyctl/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// apiClient builds a client for the current context.
func apiClient() (*client.Client, error) {
	currentCtx, err := config.GetCurrentContext()
	if err != nil {
		return nil, err
	}
	return client.New(currentCtx)
}

func printYAML(v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

var ssoConfigCmd = &cobra.Command{
	Use:     "sso-config",
	Short:   "Manage SAML single sign-on configurations",
	Aliases: []string{"sso"},
}

var ssoSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace an owner's SAML configuration (stored inactive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		if owner == "" {
			return errors.New("--owner flag is required")
		}
		provider, _ := cmd.Flags().GetString("provider")
		entryPoint, _ := cmd.Flags().GetString("entry-point")
		issuer, _ := cmd.Flags().GetString("issuer")
		certFile, _ := cmd.Flags().GetString("certificate-file")

		var certificate string
		if certFile != "" {
			pem, err := os.ReadFile(certFile)
			if err != nil {
				return fmt.Errorf("failed to read certificate file: %w", err)
			}
			certificate = string(pem)
		}

		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.UpsertSSOConfig(cmd.Context(), api.SSOConfigRequest{
			OwnerID:     owner,
			Provider:    provider,
			EntryPoint:  entryPoint,
			Issuer:      issuer,
			Certificate: certificate,
		})
		if err != nil {
			return fmt.Errorf("failed to store SSO config: %w", err)
		}
		fmt.Println("SSO configuration stored (inactive until activated):")
		return printYAML(cfg)
	},
}

var ssoGetCmd = &cobra.Command{
	Use:   "get [OWNER_ID]",
	Short: "Get an owner's SAML configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.GetSSOConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get SSO config: %w", err)
		}
		return printYAML(cfg)
	},
}

var ssoProfileCmd = &cobra.Command{
	Use:   "profile [PROVIDER]",
	Short: "Show the form labels and hints for an identity provider kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		profile, err := apiC.ProviderProfile(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get provider profile: %w", err)
		}
		return printYAML(profile)
	},
}

var ssoActivateCmd = &cobra.Command{
	Use:   "activate [CONFIG_ID]",
	Short: "Activate a SAML configuration (fails if fields are missing)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.ActivateSSOConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to activate SSO config: %w", err)
		}
		fmt.Printf("SSO configuration %s activated.\n", cfg.ID)
		return nil
	},
}

var ssoDeactivateCmd = &cobra.Command{
	Use:   "deactivate [CONFIG_ID]",
	Short: "Deactivate a SAML configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		cfg, err := apiC.DeactivateSSOConfig(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to deactivate SSO config: %w", err)
		}
		fmt.Printf("SSO configuration %s deactivated.\n", cfg.ID)
		return nil
	},
}

var ssoDeleteCmd = &cobra.Command{
	Use:   "delete [CONFIG_ID]",
	Short: "Delete a SAML configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		if err := apiC.DeleteSSOConfig(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete SSO config: %w", err)
		}
		fmt.Printf("SSO configuration %s deleted.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ssoConfigCmd)
	ssoConfigCmd.AddCommand(ssoSetCmd)
	ssoConfigCmd.AddCommand(ssoGetCmd)
	ssoConfigCmd.AddCommand(ssoProfileCmd)
	ssoConfigCmd.AddCommand(ssoActivateCmd)
	ssoConfigCmd.AddCommand(ssoDeactivateCmd)
	ssoConfigCmd.AddCommand(ssoDeleteCmd)

	ssoSetCmd.Flags().String("owner", "", "Owner (tenant) the configuration belongs to")
	ssoSetCmd.Flags().String("provider", "", "Identity provider kind (okta-saml, azure-saml, jumpcloud-saml, google-saml)")
	ssoSetCmd.Flags().String("entry-point", "", "IdP single sign-on URL")
	ssoSetCmd.Flags().String("issuer", "", "IdP issuer / entity ID")
	ssoSetCmd.Flags().String("certificate-file", "", "Path to the IdP signing certificate (PEM)")
}
