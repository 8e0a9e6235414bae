package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/spacesaver/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing spacesaver configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
Redirect the output to a file to create a configuration template:

  spacesaver config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., /etc/spacesaver, or $HOME/.spacesaver)
  - Environment variables (SPACESAVER_SERVER_PORT, SPACESAVER_ENCODER_CRF, ...)
  - Command-line flags (for some options)

Environment variables use the SPACESAVER_ prefix and underscores for nesting.
Example: server.port -> SPACESAVER_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations rendered human-readable.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(_ *cobra.Command, _ []string) error {
	// Defaults only: skip validation, which would reject the empty
	// source_dirs of a fresh template.
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	yamlData, err := yaml.Marshal(toMap(&cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# spacesaver configuration")
	fmt.Println("# Values shown are the built-in defaults.")
	fmt.Print(string(yamlData))
	return nil
}
