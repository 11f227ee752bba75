// Package commands implements the oscroute command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/pfcm/oscroute/config"
	"github.com/pfcm/oscroute/internal/printer"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "oscroute",
	Short: "Route OSC telemetry between devices and consumers",
	Long: `oscroute receives OSC packets over UDP or a serial line, routes each
message by address to the first matching route, and hands it to a sink:
the terminal, Redis pub/sub, or an sqlite recording.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the command line.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// loadConfig returns the configuration file named by --config, or the
// defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	c, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error("Couldn't load configuration", err.Error(),
			"Fix "+configPath, "Run without --config to use the defaults")
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "`path` to an oscroute.yml file")
	rootCmd.AddCommand(serveCmd, sendCmd, replayCmd)
}
