package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipwayhq/slipway/internal/engine"
	"github.com/slipwayhq/slipway/internal/event"
	"github.com/slipwayhq/slipway/internal/permission"
)

type RunOptions struct {
	RigPath     string
	ContextPath string
	AllowPath   string
	DenyPath    string
	AllowAll    bool
	Output      string
}

func NewRunCmd() *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a rig to completion",
		Long:  `Execute a rig's components to completion under a root permission chain, emitting one NDJSON lifecycle event per line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.RigPath, "rig", "", "Path to the rig JSON document (required)")
	cmd.Flags().StringVar(&opts.ContextPath, "context", "", "Path to a JSON document used as rig.context (optional)")
	cmd.Flags().StringVar(&opts.AllowPath, "allow", "", "Path to a JSON array of root-level allow permissions")
	cmd.Flags().StringVar(&opts.DenyPath, "deny", "", "Path to a JSON array of root-level deny permissions")
	cmd.Flags().BoolVar(&opts.AllowAll, "allow-all", false, "Grant the root chain unrestricted access (overrides --allow)")
	cmd.Flags().StringVar(&opts.Output, "output", "ndjson", "Event output: ndjson, human, quiet")
	_ = cmd.MarkFlagRequired("rig")

	return cmd
}

func runRun(cmd *cobra.Command, opts RunOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	rigDoc, err := os.ReadFile(opts.RigPath)
	if err != nil {
		return fmt.Errorf("reading rig %q: %w", opts.RigPath, err)
	}

	var rigContext any
	if opts.ContextPath != "" {
		data, err := os.ReadFile(opts.ContextPath)
		if err != nil {
			return fmt.Errorf("reading context %q: %w", opts.ContextPath, err)
		}
		if err := json.Unmarshal(data, &rigContext); err != nil {
			return fmt.Errorf("parsing context %q: %w", opts.ContextPath, err)
		}
	}

	allow, err := readPermissions(opts.AllowPath)
	if err != nil {
		return err
	}
	if opts.AllowAll {
		allow = []permission.Permission{permission.All()}
	}
	deny, err := readPermissions(opts.DenyPath)
	if err != nil {
		return err
	}

	emitter, err := emitterFor(opts.Output)
	if err != nil {
		return err
	}

	e, err := engine.New(cfg, emitter)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer e.Close()

	_, err = e.Run(cmd.Context(), rigDoc, rigContext, allow, deny)
	if err != nil {
		return fmt.Errorf("running rig: %w", err)
	}
	return nil
}

func readPermissions(path string) ([]permission.Permission, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading permissions %q: %w", path, err)
	}
	var perms []permission.Permission
	if err := json.Unmarshal(data, &perms); err != nil {
		return nil, fmt.Errorf("parsing permissions %q: %w", path, err)
	}
	return perms, nil
}

func emitterFor(output string) (event.Emitter, error) {
	switch output {
	case "ndjson":
		return event.NewNDJSONEmitter(), nil
	case "human":
		return event.NewNDJSONEmitterWithHumanReadable(), nil
	case "quiet":
		return event.NewProgressOnlyEmitter(), nil
	default:
		return nil, fmt.Errorf("unknown --output %q (want ndjson, human, or quiet)", output)
	}
}
