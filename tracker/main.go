// tracker runs the PPG vital-signs pipeline headless: it samples the sensor
// bridge (or a simulated sensor), reports vitals to the configured backends
// and answers commands from the base station.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	config string
	port   string
	mock   bool
	level  string
}

func main() {
	var flags rootFlags

	root := &cobra.Command{
		Use:          "tracker",
		Short:        "Wearable PPG vital-signs tracker",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "config.yaml", "Configuration file path")
	root.PersistentFlags().StringVarP(&flags.port, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	root.PersistentFlags().BoolVar(&flags.mock, "mock", false, "Use the simulated sensor instead of the serial port")
	root.PersistentFlags().StringVar(&flags.level, "log-level", "", "Log level override (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(&flags),
		newSelfTestCmd(&flags),
		newPortsCmd(),
		newConfigCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
