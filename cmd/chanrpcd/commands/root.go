package commands

import (
	"github.com/spf13/cobra"
)

// Version and Commit are set by main from ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "chanrpcd",
	Short: "chanrpc demo daemon",
	Long: `chanrpcd serves the chanrpc transport protocol over TCP, wiring a
trivial echo RpcHandler so the library can be exercised end to end.

Use --config to point at a YAML config file; otherwise chanrpcd falls back
to $XDG_CONFIG_HOME/chanrpc/config.yaml, then to struct defaults. Any
setting can also be overridden with a CHANRPC_<SECTION>_<KEY> environment
variable.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default: $XDG_CONFIG_HOME/chanrpc/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetConfigFile returns the --config flag's value.
func GetConfigFile() string {
	return configFile
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("chanrpcd %s (%s)\n", Version, Commit)
		return nil
	},
}
