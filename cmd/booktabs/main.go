package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/booktabs/internal/api"
	"github.com/dgnsrekt/booktabs/internal/backup"
	"github.com/dgnsrekt/booktabs/internal/bridge"
	"github.com/dgnsrekt/booktabs/internal/browser"
	"github.com/dgnsrekt/booktabs/internal/cdp"
	"github.com/dgnsrekt/booktabs/internal/cdpcontrol"
	"github.com/dgnsrekt/booktabs/internal/config"
	"github.com/dgnsrekt/booktabs/internal/events"
	"github.com/dgnsrekt/booktabs/internal/journal"
	"github.com/dgnsrekt/booktabs/internal/netutil"
	"github.com/dgnsrekt/booktabs/internal/notify"
	"github.com/dgnsrekt/booktabs/internal/settings"
	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// driver is a CDP-backed tab API.
type driver interface {
	tabs.Browser
	Connect(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("booktabs config loaded",
		"bind_addr", cfg.BindAddr,
		"cdp_url", cfg.CDPURL(),
		"cdp_driver", cfg.CDPDriver,
		"cdp_timeout_ms", cfg.CDPTimeoutMS,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"settings_file", cfg.SettingsFile,
		"host_site", cfg.HostSite,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)
	if cfg.HostSite == "" {
		slog.Warn("HOST_SITE_HOSTNAME not set, host-site tabs get no protection from the close sweep")
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	var launcher *browser.Launcher
	if cfg.BrowserLaunch {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.BrowserStartURL,
			ProfileDir: cfg.BrowserProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	timeout := time.Duration(cfg.CDPTimeoutMS) * time.Millisecond
	var tabDriver driver
	switch cfg.CDPDriver {
	case config.DriverChromedp:
		tabDriver = cdp.NewClient(cfg.CDPURL(), timeout, cdp.NewTabRegistry())
	default:
		tabDriver = cdpcontrol.NewClient(cfg.CDPURL(), timeout)
	}
	if err := tabDriver.Connect(context.Background()); err != nil {
		slog.Warn("CDP not reachable at startup, will retry on first use", "cdp_url", cfg.CDPURL(), "error", err)
	}
	defer func() { _ = tabDriver.Close() }()

	defaults, err := settings.LoadDefaultsFile(cfg.SettingsDefaultsFile)
	if err != nil {
		slog.Error("failed to load settings defaults", "path", cfg.SettingsDefaultsFile, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SettingsFile), 0o755); err != nil {
		slog.Error("failed to create settings directory", "path", cfg.SettingsFile, "error", err)
		os.Exit(1)
	}
	store := settings.NewStore(settings.NewFileKV(cfg.SettingsFile, settings.SyncQuota), defaults)

	backups, err := backup.NewStore(cfg.BackupDir)
	if err != nil {
		slog.Error("failed to open backup store", "dir", cfg.BackupDir, "error", err)
		os.Exit(1)
	}

	j := journal.New(cfg.JournalDir, 0, cfg.JournalMaxSizeMB)
	defer func() {
		if err := j.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}()

	broker := events.NewBroker()
	overrides := tabs.DefaultOverrides()
	dispatcher := bridge.NewDispatcher(tabDriver, store, bridge.Options{
		HostSite:   cfg.HostSite,
		OptionsURL: cfg.OptionsURL,
		Overrides:  overrides,
		Journal:    j,
		Events:     broker,
	})

	h := api.NewServer(api.Deps{
		Messages:  dispatcher,
		Settings:  store,
		Browser:   tabDriver,
		Backups:   backups,
		Events:    broker,
		Notifier:  notify.New(cfg.NtfyURL, &http.Client{Timeout: 10 * time.Second}),
		Overrides: overrides,
	})

	srv := &http.Server{Addr: bindAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("booktabs listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("booktabs server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("booktabs shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
