// Command compass-tui is a terminal chat client for a streaming agent
// backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"compass/internal/api"
	"compass/internal/config"
	"compass/internal/logging"
)

type flagValues struct {
	configPath        string
	baseURL           string
	sessionID         string
	logFile           string
	logLevel          string
	markdownStyle     string
	requestTimeout    time.Duration
	streamIdleTimeout time.Duration
	altScreen         bool
}

func newRootCmd() *cobra.Command {
	return bindRootCmd(&flagValues{})
}

func bindRootCmd(flags *flagValues) *cobra.Command {
	defaults := config.Defaults()
	cmd := &cobra.Command{
		Use:   "compass-tui",
		Short: "Chat with the agent backend from the terminal",
		Long: `A terminal client for the agent backend. Each question streams the
agent's thought process live and finishes with a rendered markdown answer.
Earlier sessions can be reopened from the sidebar.

Settings are read from built-in defaults, then the YAML file given by
--config (or the user config dir), then COMPASS_* environment variables
(a .env file is loaded first), then flags.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			return runTUI(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file (default: <user config dir>/compass/config.yaml if present)")
	f.StringVar(&flags.baseURL, "base-url", defaults.BaseURL, "Backend API base URL")
	f.StringVar(&flags.sessionID, "session", "", "Open this session at startup")
	f.StringVar(&flags.logFile, "log-file", "", "Write logs to this file (default: no logging)")
	f.StringVar(&flags.logLevel, "log-level", defaults.LogLevel, "Log level: trace, debug, info, warn, error")
	f.StringVar(&flags.markdownStyle, "markdown-style", defaults.MarkdownStyle, "Markdown style: dark, light, notty, auto")
	f.DurationVar(&flags.requestTimeout, "request-timeout", defaults.RequestTimeout, "Timeout for session list, create and history requests")
	f.DurationVar(&flags.streamIdleTimeout, "stream-idle-timeout", defaults.StreamIdleTimeout, "Give up on a stream after this long without events (0 waits forever)")
	f.BoolVar(&flags.altScreen, "alt-screen", defaults.AltScreen, "Use the terminal alternate screen")
	return cmd
}

// resolveConfig layers defaults, the config file, the environment and the
// flags the user actually set.
func resolveConfig(cmd *cobra.Command, flags *flagValues) (config.Config, error) {
	cfg := config.Defaults()

	path, optional := flags.configPath, false
	if path == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			path, optional = filepath.Join(dir, "compass", "config.yaml"), true
		}
	}
	if err := config.LoadFile(&cfg, path, optional); err != nil {
		return cfg, err
	}
	config.LoadEnv(&cfg)

	f := cmd.Flags()
	if f.Changed("base-url") {
		cfg.BaseURL = flags.baseURL
	}
	if f.Changed("session") {
		cfg.SessionID = flags.sessionID
	}
	if f.Changed("log-file") {
		cfg.LogFile = flags.logFile
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if f.Changed("markdown-style") {
		cfg.MarkdownStyle = flags.markdownStyle
	}
	if f.Changed("request-timeout") {
		cfg.RequestTimeout = flags.requestTimeout
	}
	if f.Changed("stream-idle-timeout") {
		cfg.StreamIdleTimeout = flags.streamIdleTimeout
	}
	if f.Changed("alt-screen") {
		cfg.AltScreen = flags.altScreen
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runTUI(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, closer, err := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer closer.Close()

	interactive := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	cfg.MarkdownStyle = resolveMarkdownStyle(cfg.MarkdownStyle, interactive)

	client := api.NewClient(cfg.BaseURL,
		api.WithRequestTimeout(cfg.RequestTimeout),
		api.WithLogger(log.With().Str("component", "api").Logger()),
	)
	m, err := newModel(ctx, cfg, client, log)
	if err != nil {
		return err
	}
	log.Info().
		Str("base_url", cfg.BaseURL).
		Str("session_id", cfg.SessionID).
		Bool("interactive", interactive).
		Msg("starting")

	var opts []tea.ProgramOption
	if interactive {
		if cfg.AltScreen {
			opts = append(opts, tea.WithAltScreen())
		}
		opts = append(opts, tea.WithMouseCellMotion())
	}
	opts = append(opts, tea.WithContext(ctx))
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Error().Err(err).Msg("program exited")
		return errors.Wrap(err, "compass-tui")
	}
	return nil
}

// resolveMarkdownStyle settles "auto" before the program owns the terminal,
// since detecting the background needs to query it.
func resolveMarkdownStyle(style string, interactive bool) string {
	if style != config.DefaultMarkdownStyle {
		return style
	}
	if !interactive {
		return "notty"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "compass-tui: %v\n", err)
		os.Exit(1)
	}
}
