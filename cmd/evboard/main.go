package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"evboard/internal/archive"
	"evboard/internal/capture"
	"evboard/internal/config"
	"evboard/internal/dashboard"
	"evboard/internal/enrich"
	appLog "evboard/internal/log"
	"evboard/internal/metrics"
	"evboard/internal/scheduler"
	"evboard/internal/showroom"
	"evboard/internal/web"
)

const version = "0.3.0"

type flagConfig struct {
	configPath    string
	listen        string
	logLevel      string
	updateArchive bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("evboard starting", "version", version)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"archive_url", conf.Archive.URL,
		"archive_store", conf.Archive.Store,
		"use_live", conf.Showroom.UseLive,
		"workers", conf.Enrich.Workers,
		"retention_days", conf.Filter.RetentionDays,
		"refresh", conf.RefreshCron,
		"capture", conf.Capture.Enabled,
		"admin", conf.Auth.Username != "" && conf.Auth.PasswordHash != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := build(conf)

	if flags.updateArchive {
		os.Exit(runArchiveUpdate(ctx, app.svc))
	}

	if conf.RefreshCron != "" {
		sched, err := scheduler.New(conf.RefreshCron, "archive-update", conf.Location(), func(ctx context.Context) error {
			_, err := app.svc.UpdateArchive(ctx)
			return err
		})
		if err != nil {
			appLog.Error("scheduler disabled", err, "refresh", conf.RefreshCron)
		} else {
			sched.Start(ctx)
		}
	}

	srv, err := web.NewServer(conf, app.webOpts)
	if err != nil {
		appLog.Error("failed to build web server", err)
		os.Exit(1)
	}
	if err := web.StartServer(ctx, conf, srv); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		os.Exit(1)
	}
	appLog.Info("evboard exiting")
}

type application struct {
	svc     *dashboard.Service
	webOpts web.Options
}

// build wires every component from config. A missing archive store only
// disables the update endpoint; the dashboard still renders.
func build(conf *config.Config) application {
	m := metrics.New()
	client := showroom.NewClient(conf.Showroom)
	fetcher := archive.NewFetcher(afero.NewOsFs(), conf.Archive.CacheDir, nil)
	enricher := enrich.New(client, client, conf.Enrich, m)

	opts := dashboard.Options{
		FeedURL: conf.Archive.URL,
		Feed:    fetcher,
		Enrich:  enricher,
		Metrics: m,
	}
	if conf.Showroom.UseLive {
		opts.Live = client
	}
	store, err := archive.NewStoreFromConfig(conf)
	if err != nil {
		appLog.Warn("archive store unavailable; updates disabled", "err", err)
	} else {
		opts.Updater = archive.NewUpdater(store, conf.Location())
	}
	svc := dashboard.New(conf, opts)

	webOpts := web.Options{
		Dashboard:   svc,
		Leaderboard: enricher,
		Links:       client,
		Metrics:     m,
	}
	if conf.Capture.Enabled {
		webOpts.Snapshotter = capture.Chromium{}
	}
	return application{svc: svc, webOpts: webOpts}
}

func runArchiveUpdate(ctx context.Context, svc *dashboard.Service) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := svc.UpdateArchive(ctx)
	if err != nil {
		appLog.Error("archive update failed", err)
		return 1
	}
	fmt.Printf("archive updated: total=%d added=%d run=%s\n", res.Total, res.Added, res.RunID)
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config if set)")
	flag.BoolVar(&cfg.updateArchive, "update-archive", false, "Merge the live event list into the archive once and exit")

	flag.Parse()

	return cfg
}
