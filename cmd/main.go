package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version задаётся при сборке через -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "inspector",
	Short: "Machine-vision inspection controller",
	Long:  "Inspector captures frames, runs the configured tool graph and\ncorrelates OK/NG results with conveyor sensor events.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
