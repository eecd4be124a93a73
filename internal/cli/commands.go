package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lorrc/ticket-collab/internal/auth"
	"github.com/lorrc/ticket-collab/internal/core/domain"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
			return err
		},
	}
}

func newConfigCmd(v *viper.Viper, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, opts.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			token := "(none)"
			if cfg.Token != "" {
				token = "(set)"
			}
			fmt.Fprintf(out, "gateway:          %s\n", cfg.Gateway)
			fmt.Fprintf(out, "channel:          %s\n", cfg.ChannelURL())
			fmt.Fprintf(out, "token:            %s\n", token)
			fmt.Fprintf(out, "reconnect:        every %s, %d retries\n", cfg.RetryInterval, cfg.MaxRetries)
			fmt.Fprintf(out, "sla poll:         %s\n", cfg.SLAPollInterval)
			fmt.Fprintf(out, "send warn after:  %s\n", cfg.SendWarnAfter)
			fmt.Fprintf(out, "log level:        %s\n", cfg.LogLevel)
			if used := v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(out, "config file:      %s\n", used)
			}
			return nil
		},
	}
}

// newTokenCmd mints a token for local development against a gateway that
// shares the signing secret.
func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := v.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or set COLLAB_JWT_SECRET")
			}

			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid --user-id: %w", err)
				}
				id = parsed
			}

			token, err := auth.NewTokenManager(secret, ttl).GenerateToken(id, name, domain.SenderType(role))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("secret", "", "JWT signing secret shared with the gateway")
	flags.StringVar(&userID, "user-id", "", "user id (default random)")
	flags.StringVar(&name, "name", "Agent", "display name")
	flags.StringVar(&role, "role", string(domain.SenderAgent), "role: agent, admin or customer")
	flags.DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = v.BindPFlag("jwt-secret", flags.Lookup("secret"))
	return cmd
}
