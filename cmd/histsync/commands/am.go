package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage histsync configuration",
	Long: `am - Manage histsync configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (HISTSYNC_* prefix, e.g. HISTSYNC_SYNC_TOKEN)
2. Project config (histsync.toml, searched upward from the working directory)
3. User config (~/.histsync/config.toml, or $HISTSYNC_DIR/config.toml)
4. System config (/etc/histsync/config.toml)
5. Default values

Examples:
  histsync am init                   # Write the default user config
  histsync am show                   # Show the resolved configuration
  histsync am show --format json     # ... as JSON
  histsync am validate               # Check values and flag unknown keys
  histsync am where                  # List the config files consulted`,
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runAmInit,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the resolved histsync configuration from all sources. The sync token is redacted.",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the resolved configuration and report keys in config files that histsync does not recognise.",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var (
	configFormat string
	initPath     string
	initForce    bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().StringVar(&initPath, "path", "", "Where to write (default: user config path)")
	amInitCmd.Flags().BoolVar(&initForce, "force", false, "Replace an existing file, keeping a backup")

	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := initPath
	if path == "" {
		path = am.UserConfigPath()
	}
	if err := am.WriteDefault(path, initForce); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	shown := *cfg
	if shown.Sync.Token != "" {
		shown.Sync.Token = "<redacted>"
	}
	if len(shown.Server.Tokens) > 0 {
		shown.Server.Tokens = []string{fmt.Sprintf("<%d redacted>", len(cfg.Server.Tokens))}
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(shown)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# histsync configuration\n%s", string(data))
	case "toml":
		data, err := toml.Marshal(shown)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# histsync configuration\n%s", string(data))
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	// Load validates
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	var unknown int
	for _, path := range am.ConfigPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		keys, err := am.UnknownKeys(path)
		if err != nil {
			return err
		}
		for _, key := range keys {
			pterm.Warning.Printf("%s: unknown key %q\n", path, key)
		}
		unknown += len(keys)
	}
	if unknown > 0 {
		return errors.Newf("%d unknown configuration keys", unknown)
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration cascade (later overrides earlier):")
	for i, path := range am.ConfigPaths() {
		state := pterm.Gray("missing")
		if _, err := os.Stat(path); err == nil {
			state = pterm.Green("found")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s (%s)\n", i+1, path, state)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "  then HISTSYNC_* environment variables")
	return nil
}
