package commands

import (
	"context"
	"dagsync/app"
	"dagsync/types/config"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	instance   string
	baseURL    string
	username   string
	password   string
	timeout    time.Duration
}

// NewRootCommand creates the dagsync command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "dagsync",
		Short:         "Keep job and run views in sync with a remote DAG scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "YAML config file path")
	cmd.PersistentFlags().StringVar(&flags.instance, "instance", "dagsync", "instance name stamped on published events")
	cmd.PersistentFlags().StringVar(&flags.baseURL, "url", "", "remote API base URL, overrides the config file")
	cmd.PersistentFlags().StringVar(&flags.username, "username", os.Getenv("DAGSYNC_USERNAME"), "remote API user")
	cmd.PersistentFlags().StringVar(&flags.password, "password", os.Getenv("DAGSYNC_PASSWORD"), "remote API password")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", config.DefaultRemoteTimeout, "remote request timeout")

	cmd.AddCommand(
		newWatchCommand(flags),
		newCheckCommand(flags),
	)
	return cmd
}

// loadConfig builds the config from the file when given, then applies flag overrides.
func (f *globalFlags) loadConfig() (*config.DagSyncConfig, error) {
	var cfg *config.DagSyncConfig
	var err error
	if f.configFile != "" {
		if cfg, err = config.LoadFile(f.configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if cfg, err = config.NewDagSyncConfig(f.instance); err != nil {
		return nil, err
	}

	if f.baseURL != "" {
		remote := config.RemoteConfig{BaseURL: f.baseURL, Username: f.username, Password: f.password, Timeout: f.timeout}
		if err := config.WithRemoteConfig(remote)(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (f *globalFlags) container(ctx context.Context) (*app.Container, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, cfg)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
