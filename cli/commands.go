package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zot/modbind/site"
)

// siteConfigPath is where a site keeps its config file.
const siteConfigPath = "config/config.toml"

// loadSite resolves the site files and configuration for a command. Without
// --dir the embedded example site is used.
func loadSite(cmd *cobra.Command) (*Config, fs.FS, string, error) {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	configPath, _ := flags.GetString("config")

	var files fs.FS = site.Files
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, nil, "", fmt.Errorf("site directory: %w", err)
		}
		if !info.IsDir() {
			return nil, nil, "", fmt.Errorf("site directory %s is not a directory", dir)
		}
		files = os.DirFS(dir)
	}

	var cfg *Config
	var err error
	if configPath != "" {
		cfg, err = Load(configPath)
	} else {
		cfg, err = LoadFS(files, siteConfigPath)
	}
	if err != nil {
		return nil, nil, "", err
	}
	cfg.ApplyFlags(flags)
	return cfg, files, dir, nil
}

func openApp(cmd *cobra.Command, hooks *Hooks) (*App, *Config, error) {
	cfg, files, dir, err := loadSite(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, err := NewApp(cfg, files, dir, hooks.Modules)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func newServeCommand(hooks *Hooks) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a live preview of the bound page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := openApp(cmd, hooks)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg.Log(0, "serving on http://%s:%d", cfg.Server.Host, cfg.Server.Port)
			return NewServer(cfg, a).Run(ctx)
		},
	}
}

func newRenderCommand(hooks *Hooks) *cobra.Command {
	var (
		timeout time.Duration
		body    bool
		sets    []string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Bind the page and print the resulting HTML",
		Long: `Bind the page, wait for module and template loads to settle and print the
resulting HTML. Loads still pending after --timeout are left in their loading
state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd, hooks)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, s := range sets {
				name, raw, ok := strings.Cut(s, "=")
				if !ok {
					return &ExitError{Code: 2, Err: fmt.Errorf("--set %q: expected name=value", s)}
				}
				if err := a.Set(name, ParseValue(raw)); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := a.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			var html string
			if body {
				html, err = a.BodyHTML()
			} else {
				html, err = a.HTML()
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), html)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Longest time to wait for loads")
	cmd.Flags().BoolVar(&body, "body", false, "Print only the contents of <body>")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a root value before rendering (name=value, value as JSON or text)")
	return cmd
}

func newMCPCommand(hooks *Hooks) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools for the bound page on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := openApp(cmd, hooks)
			if err != nil {
				return err
			}
			defer a.Close()
			return NewMCPServer(cfg, a, Version).ServeStdio()
		},
	}
}
