package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/loykin/mca"
	"github.com/loykin/mca/internal/config"
)

// loadConfig resolves and loads the config and builds the logger from it.
func loadConfig(global *GlobalFlags, stderr io.Writer) (*mca.Config, *slog.Logger, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}
	path, err := config.ResolvePath(global.ConfigPath, wd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if global.LogLevel != "" {
		cfg.Log.Slog.Level = global.LogLevel
	}
	log := cfg.Log.NewSloggerTo(stderr)
	slog.SetDefault(log)
	log.Debug("loaded config", "path", cfg.Path, "workers", len(cfg.Enabled()))
	if len(cfg.Enabled()) == 0 {
		return nil, nil, errors.New("no enabled agents in " + cfg.Path)
	}
	return cfg, log, nil
}

// reportProxies prints one warning line per proxy that did not become ready.
func reportProxies(w io.Writer, u *ui, failed []mca.Handle) {
	for _, h := range failed {
		msg := h.LastError
		if msg == "" {
			msg = "not ready"
		}
		_, _ = fmt.Fprintf(w, "%s proxy %s (port %d) failed: %s\n", u.warn("[WARN]"), h.Name, h.Port, msg)
	}
}
