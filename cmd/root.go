package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livecanvas/internal/config"
	"github.com/conneroisu/livecanvas/internal/logging"
)

// configFileEnv names a configuration file when --config is not given.
const configFileEnv = "LIVECANVAS_CONFIG_FILE"

// NewRootCommand builds the livecanvas command tree.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "livecanvas",
		Short: "Visual structural editing for JSX and HTML markup",
		Long: `livecanvas edits JSX and HTML markup structurally. Code is parsed into a tree
of elements with stable ids, edited through typed operations, regenerated as
text and streamed to live preview clients as minimal patches.

Configuration is read from .livecanvas.yml, the file named by --config or
LIVECANVAS_CONFIG_FILE, and LIVECANVAS_ prefixed environment variables such
as LIVECANVAS_SERVER_PORT.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, cfgFile)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.livecanvas.yml)")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newServeCommand(),
		newParseCommand(),
		newApplyCommand(),
		newComponentsCommand(),
		newInitCommand(),
		newVersionCommand(),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// initConfig points viper at the configuration file and the environment.
// A missing default file is fine; a missing explicit one is not.
func initConfig(cmd *cobra.Command, cfgFile string) error {
	if cfgFile == "" {
		cfgFile = os.Getenv(configFileEnv)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.FileName, ".yml"))
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", viper.ConfigFileUsed())
	return nil
}

// loadRuntime loads the configuration and builds the logger every command
// shares. Logs go to the command's stderr.
func loadRuntime(cmd *cobra.Command) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, nil, err
	}
	lc.Output = cmd.ErrOrStderr()
	lc.Component = "livecanvas"

	return cfg, logging.NewLogger(lc), nil
}
