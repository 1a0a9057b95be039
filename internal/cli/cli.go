// Package cli wires the pipeline components to the mn-precincts command line.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	precincts "github.com/tingold/mn-precincts"
	"github.com/tingold/mn-precincts/internal/build"
	"github.com/tingold/mn-precincts/internal/index"
	"github.com/tingold/mn-precincts/internal/validate"
)

// Options are the persistent flags shared by every subcommand.
type Options struct {
	Root  string
	Debug bool
}

// env resolves the repository root from --root, CIVIC_MN_ROOT or the
// working directory, in that order.
func (o *Options) env(w io.Writer) *precincts.Env {
	root := o.Root
	if root == "" {
		root = os.Getenv(precincts.EnvRoot)
	}
	if root == "" {
		root = "."
	}
	return precincts.NewEnv(root, w, o.Debug)
}

// NewRootCommand returns the mn-precincts command. The component exit code
// of the subcommand that ran is stored in *code.
func NewRootCommand(code *int) *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:           "mn-precincts",
		Short:         "Build, validate and index Minnesota precinct boundary layers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.Root, "root", "", "repository root (default $"+precincts.EnvRoot+" or the working directory)")
	root.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newBuildCommand(opts, code),
		newValidateCommand(opts, code),
		newIndexCommand(opts, code),
	)
	return root
}

func newBuildCommand(opts *Options, code *int) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Normalize, repair and write a versioned precinct layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = build.Main(cmd.Context(), opts.env(cmd.ErrOrStderr()), version)
			return nil
		},
	}
	cmd.Flags().StringVarP(&version, "version", "v", "", "version tag of the output directory")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newValidateCommand(opts *Options, code *int) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a built precinct layer version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = validate.Main(opts.env(cmd.ErrOrStderr()), version)
			return nil
		},
	}
	cmd.Flags().StringVarP(&version, "version", "v", "", "version tag to validate")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newIndexCommand(opts *Options, code *int) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild index.json, manifest.json and the state index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = index.Main(opts.env(cmd.ErrOrStderr()))
			return nil
		},
	}
}

// Execute runs the command line with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := 0
	root := NewRootCommand(&code)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return code
}
