package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/waypost/internal/api"
	"github.com/zulandar/waypost/internal/config"
	"github.com/zulandar/waypost/internal/idgen"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint authentication tokens",
	}

	cmd.AddCommand(newTokenTenantCmd())
	cmd.AddCommand(newTokenRepoCmd())
	return cmd
}

func newTokenTenantCmd() *cobra.Command {
	var (
		configPath string
		tenantID   string
		ttlHours   int
	)

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Mint a tenant bearer token for the API",
		Long:  "Signs a tenant-scoped JWT with the configured secret. Prompts for the secret when the config has none.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenTenant(cmd, configPath, tenantID, ttlHours)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "waypost.yaml", "path to Waypost config file")
	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "tenant id (required)")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "token lifetime in hours (defaults to the configured TTL)")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func runTokenTenant(cmd *cobra.Command, configPath, tenantID string, ttlHours int) error {
	secret := ""
	ttl := 24 * 30 * time.Hour

	cfg, err := config.Load(configPath)
	if err == nil {
		secret = cfg.Auth.JWTSecret
		ttl = time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	}
	if ttlHours > 0 {
		ttl = time.Duration(ttlHours) * time.Hour
	}
	if secret == "" {
		secret, err = promptSecret(cmd)
		if err != nil {
			return err
		}
	}

	tok, err := api.MintToken(secret, tenantID, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

func newTokenRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repo",
		Short: "Generate a webhook API token for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := idgen.APIToken()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

// promptSecret reads the JWT secret from the terminal without echo.
func promptSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no jwt secret configured and stdin is not a terminal")
	}
	fmt.Fprint(cmd.OutOrStdout(), "JWT secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty secret")
	}
	return string(raw), nil
}
