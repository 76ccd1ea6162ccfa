package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/alicanerdogan/livemarkdown/internal/config"
	"github.com/alicanerdogan/livemarkdown/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect livemarkdown configuration",
	Long: `Inspect the configuration resolved from flags, LIVEMARKDOWN_* environment
variables and the config file.

Examples:
  livemarkdown config show
  livemarkdown config validate --strict`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration as YAML",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE:  runConfigValidate,
}

var configStrict bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	encoder := yaml.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return encoder.Close()
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	result := config.Validate(cfg)
	out := cmd.OutOrStdout()
	if report := result.String(); report != "" {
		fmt.Fprint(out, report)
	}

	if result.HasErrors() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration", result)
	}
	if configStrict && result.HasWarnings() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "configuration has warnings (strict mode)", nil)
	}

	fmt.Fprintln(out, "Configuration is valid")
	return nil
}
