package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/config"
	"github.com/devmarvs/tokenauth/logging"
)

// Version information set at build time.
var version = "dev"

type rootOptions struct {
	configPath  string
	secretsPath string
	envPrefix   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tokenauth",
		Short: "Token authentication for multiple principal types",
		Long: `tokenauth authenticates requests for several kinds of principals
(User, SuperAdmin, ...) from a token and an identifier sent as request
params or headers, falling back to a signed session cookie.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a JSON config file")
	cmd.PersistentFlags().StringVar(&opts.secretsPath, "secrets", "", "path to a JSON file layered over the config, e.g. the session key")
	cmd.PersistentFlags().StringVar(&opts.envPrefix, "env-prefix", "TOKENAUTH_", "prefix of environment overrides")

	cmd.AddCommand(
		serveCmd(opts),
		resolveCmd(opts),
		tokenCmd(),
	)
	return cmd
}

func (o *rootOptions) load() (config.Config, error) {
	return tokenauth.LoadConfigProfile(tokenauth.ConfigProfile{
		BasePath:    o.configPath,
		SecretsPath: o.secretsPath,
		EnvPrefix:   o.envPrefix,
	})
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.NewLogger(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: cmd.ErrOrStderr(),
	})
}
