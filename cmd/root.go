// Package cmd provides the livemarkdown command-line interface.
//
// Configuration is resolved by Viper with the following precedence:
//  1. Command-line flags (--port, --host, ...) - highest priority
//  2. LIVEMARKDOWN_CONFIG_FILE environment variable - custom config file path
//  3. Individual environment variables (LIVEMARKDOWN_SERVER_PORT, ...)
//  4. Configuration file (.livemarkdown.yml) - lowest priority
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/alicanerdogan/livemarkdown/internal/config"
	"github.com/alicanerdogan/livemarkdown/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livemarkdown",
	Short: "Live-reloading markdown preview server",
	Long: `livemarkdown renders markdown files in the browser and keeps every open
page in sync with the file on disk and with the editor's cursor position.

Quick Start:
  livemarkdown serve README.md          Preview README.md
  livemarkdown id README.md             Print the document id of a path
  livemarkdown config show              Show the effective configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .livemarkdown.yml, can also use LIVEMARKDOWN_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", config.DefaultLogFormat, "log format (text, json)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
	})
}

// initConfig points Viper at the config file and enables LIVEMARKDOWN_*
// environment overrides. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(config.DefaultConfigName)
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the resolved configuration.
func newLogger(cfg *config.Config, out io.Writer) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	})
}

// bindFlags binds each config key to the flag of the same meaning in fs.
func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = viper.BindPFlag(key, fs.Lookup(name))
	}
}
