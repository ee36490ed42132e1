package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show crosspost configuration",
	Long: `Display crosspost configuration ("I am").

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/crosspost/config.toml)
3. User config (~/.crosspost/config.toml)
4. Project config (./crosspost.toml, searched up from the working directory)
5. Environment variables (CROSSPOST_* prefix, e.g. CROSSPOST_SCHEDULER_MAX_CONCURRENCY)

--config <file> replaces the cascade with a single file.

Examples:
  crosspost am show                  # Show current configuration
  crosspost am show --format json    # Show configuration in JSON format
  crosspost am validate              # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources, with passwords masked",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	cfg = cfg.Redacted()
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# crosspost configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# crosspost configuration\n%s", string(data))

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	// Load validates; a config that loads is valid.
	if _, err := loadConfig(cmd); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	files := am.ConfigFiles()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		files = []string{path}
	}
	out := cmd.OutOrStdout()
	for _, f := range files {
		unknown, err := am.UnknownKeys(f)
		if err != nil {
			return err
		}
		for _, k := range unknown {
			fmt.Fprintf(out, "⚠ %s: unknown key %q is ignored\n", f, k)
		}
	}
	fmt.Fprintln(out, "✓ Configuration is valid")
	return nil
}
