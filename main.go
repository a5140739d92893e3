// equitydesk - terminal companion for the equity research dashboard.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/equitydesk/internal/api"
	"github.com/jeranaias/equitydesk/internal/config"
	"github.com/jeranaias/equitydesk/internal/generate"
	"github.com/jeranaias/equitydesk/internal/session"
	"github.com/jeranaias/equitydesk/internal/storage"
	"github.com/jeranaias/equitydesk/internal/ui"
	"github.com/jeranaias/equitydesk/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.equitydesk/config.toml)")
		modeFlag    = flag.String("mode", "", "initial chat mode: normal or agent (overrides config)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: equitydesk [flags] SYMBOL\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("equitydesk %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	symbol := strings.ToUpper(flag.Arg(0))

	if err := run(symbol, *configPath, *modeFlag); err != nil {
		fmt.Fprintf(os.Stderr, "equitydesk: %v\n", err)
		os.Exit(1)
	}
}

func run(symbol, configPath, modeFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if modeFlag != "" {
		cfg.Chat.DefaultMode = strings.ToLower(modeFlag)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	closeLog, err := setupLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	client := api.NewClientWithConfig(&api.ClientConfig{
		BaseURL:           cfg.Backend.URL,
		Timeout:           time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
		Model:             cfg.Backend.Model,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
	})

	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}
	store, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open local history: %w", err)
	}
	defer store.Close()

	sess := session.New(client, session.Config{
		Symbol:   symbol,
		Mode:     session.Mode(cfg.Chat.DefaultMode),
		Recorder: store,
	})
	defer sess.Close()

	brief := generate.New(client, generate.Config{
		Symbol: symbol,
		Store:  store,
	})
	defer brief.Close()

	theme := styles.NewTheme(cfg.UI.Theme)
	m := ui.New(theme, sess, brief, cfg.UI.ShowTimestamps)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Controllers push refreshes through the program once it is running.
	refresh := func() { p.Send(ui.RefreshMsg{}) }
	sess.SetOnUpdate(refresh)
	brief.SetOnUpdate(refresh)

	// Probe the remote cache on startup; generate only on a miss so a
	// revisited symbol opens instantly.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := brief.Load(ctx); err != nil {
			slog.Warn("brief probe failed", "error", err)
			return
		}
		if brief.Snapshot().State == generate.StateIdle {
			if err := brief.Generate(false); err != nil {
				slog.Warn("brief generation failed to start", "error", err)
			}
		}
	}()

	// Live-reload presentation settings when the config file changes.
	watcher := startConfigWatcher(configPath, p)
	if watcher != nil {
		defer watcher.Close()
	}

	_, err = p.Run()
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// setupLogging routes slog to a file; the TUI owns the terminal.
func setupLogging() (func(), error) {
	dir, err := config.Dir()
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() {}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "desk.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
	return func() { f.Close() }, nil
}

// startConfigWatcher watches the active config file and forwards
// presentation changes into the running program. Returns nil when the
// config path cannot be resolved; the desk then runs without live reload.
func startConfigWatcher(explicitPath string, p *tea.Program) *config.Watcher {
	path := explicitPath
	if path == "" {
		var err error
		path, err = config.Path()
		if err != nil {
			return nil
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	w, err := config.NewWatcher(path, 200*time.Millisecond, func(cfg *config.Config) {
		slog.Info("config reloaded")
		p.Send(ui.ConfigReloadedMsg{
			Theme:          styles.NewTheme(cfg.UI.Theme),
			ShowTimestamps: cfg.UI.ShowTimestamps,
		})
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	if err := w.Watch(); err != nil {
		slog.Warn("config watch failed", "error", err)
		w.Close()
		return nil
	}
	return w
}
