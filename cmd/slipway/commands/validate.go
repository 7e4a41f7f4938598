package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipwayhq/slipway/internal/engine"
)

type ValidateOptions struct {
	RigPath string
	Verbose bool
}

func NewValidateCmd() *cobra.Command {
	var opts ValidateOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a rig",
		Long:  `Parse a rig document, prime its component cache, and check its topology, without executing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RigPath, "rig", "", "Path to the rig JSON document (required)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose output")
	_ = cmd.MarkFlagRequired("rig")

	return cmd
}

func runValidate(cmd *cobra.Command, opts ValidateOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	rigDoc, err := os.ReadFile(opts.RigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("reading rig %q: %w\n\nHint: check the --rig path", opts.RigPath, err)
		}
		return fmt.Errorf("reading rig %q: %w", opts.RigPath, err)
	}

	e, err := engine.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer e.Close()

	rig, _, err := e.Validate(cmd.Context(), rigDoc)
	if err != nil {
		fmt.Printf("✗ Validation failed\n")
		return err
	}

	if opts.Verbose {
		fmt.Printf("✓ Parsed rig with %d component(s)\n", len(rig.Rigging))
		fmt.Printf("✓ Component cache primed\n")
		fmt.Printf("✓ Topology is acyclic\n")
	}
	fmt.Printf("✓ Validation successful\n")
	return nil
}
