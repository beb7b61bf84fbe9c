package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"docchat/internal/backend"
	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/logging"
	"docchat/internal/session"
)

var Version = "dev"

// cliEnv is resolved once per invocation from the persistent flags.
type cliEnv struct {
	cfg     *config.Config
	log     *logrus.Logger
	backend *backend.Client
	tokens  session.TokenSource
}

type rootFlags struct {
	configPath string
	token      string
	baseURL    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	env := &cliEnv{}

	rootCmd := &cobra.Command{
		Use:           "docchat",
		Short:         "Ask questions about your documents from the terminal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.load(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default $CONFIG_FILE or configs/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "bearer token (default from $DOCCHAT_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "backend base URL")

	rootCmd.AddCommand(askCmd(env))
	rootCmd.AddCommand(watchCmd(env))
	rootCmd.AddCommand(processCmd(env))
	rootCmd.AddCommand(generateCmd(env))

	return rootCmd
}

func (e *cliEnv) load(cmd *cobra.Command, flags *rootFlags) error {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if flags.baseURL != "" {
		cfg.Backend.BaseURL = flags.baseURL
	}

	e.cfg = cfg
	e.log = logging.New(cfg.Log.Level, "text")
	e.log.SetOutput(cmd.ErrOrStderr())
	e.backend = bootstrap.NewBackendClient(cfg)

	var source session.TokenSource = session.EnvSource{Key: cfg.Auth.TokenEnv}
	if flags.token != "" {
		source = session.StaticSource(flags.token)
	}
	e.tokens = session.NewJWTSource(source, cfg.Auth.JWTSecret)
	return nil
}
