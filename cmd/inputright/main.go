package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeffo777/input-right/internal/config"
	"github.com/jeffo777/input-right/pkg/plugin"
	"github.com/jeffo777/input-right/pkg/version"

	// Register providers with the plugin registry.
	_ "github.com/jeffo777/input-right/pkg/plugin/energy"
	_ "github.com/jeffo777/input-right/pkg/plugin/fake"
	_ "github.com/jeffo777/input-right/pkg/plugin/openai"
)

// v collects flag overrides; config.LoadWith layers file and environment
// values underneath them.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "inputright",
	Short: "Voice receptionist that answers callers and captures leads",
	Long: `inputright runs a voice agent in LiveKit rooms. The agent answers a
caller's questions from the tenant's knowledge base and, when the caller
wants to be contacted, shows a verification form and stores the lead.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetVersionInfo())
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin management commands",
}

var pluginListCmd = &cobra.Command{
	Use:   "list [kind]",
	Short: "List registered plugins",
	Long: `List all registered plugins or plugins of a specific kind.
Available kinds: stt, tts, llm, vad`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := ""
		if len(args) > 0 {
			kind = args[0]
		}

		plugins := plugin.List(kind)
		out := cmd.OutOrStdout()
		if len(plugins) == 0 {
			if kind == "" {
				fmt.Fprintln(out, "No plugins registered")
			} else {
				fmt.Fprintf(out, "No plugins registered for kind: %s (known kinds: %v)\n", kind, plugin.ListKinds())
			}
			return nil
		}

		fmt.Fprintf(out, "%-8s %-20s %-10s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
		fmt.Fprintln(out, "------------------------------------------------------------")
		for _, p := range plugins {
			ver := p.Version
			if ver == "" {
				ver = "N/A"
			}
			description := p.Description
			if description == "" {
				description = "No description"
			}
			fmt.Fprintf(out, "%-8s %-20s %-10s %s\n", p.Kind, p.Name, ver, description)
		}
		return nil
	},
}

// loadConfig reads the configuration and installs the global logger. The
// returned closer flushes the log file.
func loadConfig(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWith(v, path)
	if err != nil {
		return nil, nil, err
	}
	closer := config.SetupLogging(cfg.Logging)
	slog.Debug("Configuration loaded", slog.String("command", cmd.CommandPath()))
	return cfg, closer, nil
}

// bindFlag maps a command flag onto a configuration key.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: ./inputright.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	if err := v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(err)
	}

	pluginCmd.AddCommand(pluginListCmd)
	rootCmd.AddCommand(versionCmd, pluginCmd, agentCmd, workerCmd, backendCmd, tokenCmd, tenantCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
