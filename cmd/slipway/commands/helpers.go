package commands

import (
	"github.com/spf13/cobra"

	"github.com/slipwayhq/slipway/internal/config"
)

// loadConfig reads --config if given, otherwise falls back to the
// engine's built-in defaults: a missing --config is not itself an
// error, only an unreadable or invalid one.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.NewLoader().Load(path)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}
