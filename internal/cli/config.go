package cli

import (
	"fmt"
	"time"

	"agora/internal/identity"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand prints the effective configuration. Secrets are tagged
// yaml:"-" and never printed.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.LoadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// NewTokenCommand issues a bearer token for an account, for local testing.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Issue a signed account bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, ok := identity.ParseAccountSubject(args[0])
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid account id %q", args[0]))
			}
			cfg, err := rootOpts.LoadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			token, err := identity.NewAccountVerifier(cfg.JWTSecret).Issue(accountID, ttl)
			if err != nil {
				return WrapExitError(ExitFailure, "issue token", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
