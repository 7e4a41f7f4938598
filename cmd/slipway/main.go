package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipwayhq/slipway/cmd/slipway/commands"
)

var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:     "slipway",
	Short:   "Slipway rig execution engine",
	Long:    `Slipway runs Rigs: DAGs of sandboxed components wired together by JSONPath data flow and gated by a hierarchical permission chain.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.SetVersionTemplate("slipway version {{.Version}}\n")

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to engine configuration YAML (defaults used if omitted)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(commands.NewValidateCmd())
	rootCmd.AddCommand(commands.NewRunCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
