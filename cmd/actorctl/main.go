// Command actorctl is the operational CLI for the durable actor
// runtime: it runs the daemon (worker loop + activation pool over the
// configured adapters) and offers a handful of thin operator commands
// for driving and inspecting it, mirroring the shape of the teacher's
// "nova" CLI scaled down to this runtime's scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "actorctl",
		Short: "actorctl - durable actor runtime control plane",
		Long:  "A CLI for running the actor runtime daemon and driving actors against it",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (JSON or YAML; optional, flags override)")

	rootCmd.AddCommand(
		daemonCmd(),
		enqueueCmd(),
		getCmd(),
		registerActivityCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
