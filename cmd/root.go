// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/observability"
	"go.uber.org/zap"
)

// envPrefix prefixes every environment override, e.g. VISION_LOGGER_LEVEL.
const envPrefix = "VISION"

// options carries the state shared by the subcommands of one root command.
type options struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree. Each call gets its own viper
// instance, so flags never leak between executions.
func NewRootCommand() *cobra.Command {
	opts := &options{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "vision-assistant",
		Short:         "Vision assistant fills web EMR forms by looking at the screen.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newResolveCmd(opts),
		newConnectCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line against ctx. Errors are logged here; the
// caller only maps them to an exit code.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if logger := observability.GetLogger(); logger != nil {
		logger.Error("Command execution failed", zap.Error(err))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return err
}

// load reads the config file and environment, then initializes logging.
func (o *options) load() error {
	config.SetDefaults(o.v)
	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
	} else {
		o.v.AddConfigPath(".")
		o.v.SetConfigName("config")
		o.v.SetConfigType("yaml")
	}
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	o.v.AutomaticEnv()

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	cfg, err := config.NewConfigFromViper(o.v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "vision-assistant"})
		return err
	}
	observability.InitializeLogger(cfg.Logger)
	observability.GetLogger().Debug("Configuration loaded", zap.String("file", o.v.ConfigFileUsed()))
	o.cfg = cfg
	return nil
}
