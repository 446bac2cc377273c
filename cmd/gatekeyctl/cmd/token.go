package cmd

import (
	"errors"
	"fmt"

	"github.com/gatekey-io/gatekey/api"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Mint, renew, verify, and revoke machine access tokens",
	Aliases: []string{"tokens"},
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Authenticate and mint an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		configID, _ := cmd.Flags().GetString("config")
		proof, _ := cmd.Flags().GetString("proof")
		ttl, _ := cmd.Flags().GetInt64("ttl")

		if owner == "" && configID == "" {
			return errors.New("one of --owner or --config is required")
		}
		if proof == "" {
			return errors.New("--proof flag is required")
		}

		apiC, err := apiClient()
		if err != nil {
			return err
		}

		req := api.AuthenticateRequest{Proof: proof, RequestedTTL: ttl}
		var token *api.TokenResponse
		if configID != "" {
			token, err = apiC.AuthenticateConfig(cmd.Context(), configID, req)
		} else {
			req.OwnerID = owner
			token, err = apiC.Authenticate(cmd.Context(), req)
		}
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return printYAML(token)
	},
}

var tokenRenewCmd = &cobra.Command{
	Use:   "renew [TOKEN_ID]",
	Short: "Extend a token's expiry without changing its value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		token, err := apiC.RenewToken(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to renew token: %w", err)
		}
		fmt.Printf("Token %s renewed until %s.\n", token.TokenID, token.ExpiresAt)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke [TOKEN_ID]",
	Short: "Permanently invalidate a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		if err := apiC.RevokeToken(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to revoke token: %w", err)
		}
		fmt.Printf("Token %s revoked.\n", args[0])
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify [ACCESS_TOKEN]",
	Short: "Verify a presented token value and show its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		info, err := apiC.VerifyToken(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("token verification failed: %w", err)
		}
		return printYAML(info)
	},
}

var tokenGetCmd = &cobra.Command{
	Use:   "get [TOKEN_ID]",
	Short: "Show token metadata by ledger ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiC, err := apiClient()
		if err != nil {
			return err
		}
		info, err := apiC.GetToken(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		return printYAML(info)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenMintCmd)
	tokenCmd.AddCommand(tokenRenewCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)
	tokenCmd.AddCommand(tokenGetCmd)

	tokenMintCmd.Flags().String("owner", "", "Owner whose machine configuration to authenticate against")
	tokenMintCmd.Flags().String("config", "", "Specific configuration ID to authenticate against")
	tokenMintCmd.Flags().String("proof", "", "Platform identity proof presented by the workload")
	tokenMintCmd.Flags().Int64("ttl", 0, "Requested token TTL in seconds (0 uses the configured TTL)")
}
