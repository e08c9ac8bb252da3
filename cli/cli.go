// Package cli provides the modbind command line. It exports Run and
// RunWithHooks so wrapper projects can add native modules and commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/zot/modbind/internal/config"
)

// Version is the modbind version (set via -ldflags).
var Version = "dev"

// Hooks extends the CLI.
type Hooks struct {
	// Modules are native modules keyed by module name. They are used when
	// the Lua loader is disabled.
	Modules map[string]any

	// Commands are added to the root command.
	Commands []*cobra.Command

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string
}

// ExitError carries a specific exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes the CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	return execute(args, hooks, os.Stdout, os.Stderr)
}

func execute(args []string, hooks *Hooks, stdout, stderr io.Writer) int {
	root := NewRootCommand(hooks)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree.
func NewRootCommand(hooks *Hooks) *cobra.Command {
	if hooks == nil {
		hooks = &Hooks{}
	}

	root := &cobra.Command{
		Use:   "modbind",
		Short: "Bind HTML pages to Lua and Go modules",
		Long: `modbind binds HTML elements to modules.

An element with a data-module attribute loads the named module, creates an
instance from it, renders the module's template into the element and disposes
the instance when the binding changes. Modules are Lua files below the module
base directory (or native Go values); templates are html/template files below
the template directory.

Examples:
  modbind serve                       Preview the embedded example site
  modbind serve --dir my-site --hot   Preview a site, reloading on change
  modbind render --dir my-site        Print the bound page
  modbind render --set article=article-two
  modbind mcp --dir my-site           Serve MCP tools on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(root.PersistentFlags())
	root.PersistentFlags().String("config", "", "Config file (default: <dir>/config/config.toml)")

	root.AddCommand(newServeCommand(hooks))
	root.AddCommand(newRenderCommand(hooks))
	root.AddCommand(newMCPCommand(hooks))
	root.AddCommand(newVersionCommand(hooks))
	for _, c := range hooks.Commands {
		root.AddCommand(c)
	}
	return root
}

func newVersionCommand(hooks *Hooks) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "modbind %s\n", Version)
			if hooks.CustomVersion != nil {
				fmt.Fprintln(cmd.OutOrStdout(), hooks.CustomVersion())
			}
			return nil
		},
	}
}
