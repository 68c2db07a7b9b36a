// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/observability"
	"github.com/xkilldash9x/pentestd/internal/service"
)

const envPrefix = "PENTESTD"

// app is the state shared by the commands of one root command instance.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	factory service.ComponentFactory
}

// NewRootCommand builds the command tree wired to the production component factory.
func NewRootCommand() *cobra.Command {
	return newRootCmd(service.NewComponentFactory())
}

func newRootCmd(factory service.ComponentFactory) *cobra.Command {
	a := &app{v: viper.New(), factory: factory}
	config.SetDefaults(a.v)

	rootCmd := &cobra.Command{
		Use:           "pentestd",
		Short:         "pentestd runs simulated penetration-test scans and synthesizes security reports.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pentestd"})
				return err
			}
			observability.InitializeLogger(a.cfg.Logger())
			observability.GetLogger().Debug("Starting pentestd", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.pentestd/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "pentestd version %s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newScanCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Info("Command aborted by signal")
		return err
	}
	observability.GetLogger().Error("Command execution failed", zap.Error(err))
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// initializeConfig reads the config file and environment into a.cfg.
func (a *app) initializeConfig() error {
	if a.cfgFile != "" {
		path, err := homedir.Expand(a.cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path %s: %w", a.cfgFile, err)
		}
		a.v.SetConfigFile(path)
	} else {
		a.v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			a.v.AddConfigPath(home + "/.pentestd")
		}
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}
