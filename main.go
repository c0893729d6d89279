package main

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"holdscribe/internal/bootstrap"
	"holdscribe/internal/config"
	"holdscribe/internal/lock"
	hlog "holdscribe/internal/log"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "holdscribe:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pidLock, err := lock.AcquirePIDLock(cfg.Paths.LockFile)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return errors.New("another holdscribe instance is already running")
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer pidLock.Release()

	var out io.Writer = os.Stdout
	logFile, err := hlog.OpenFile(cfg.Paths.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "holdscribe: log file unavailable:", err)
	} else {
		defer logFile.Close()
		out = io.MultiWriter(os.Stdout, logFile)
	}
	hlog.Setup(cfg.Log.Level, out)
	hlog.Info("starting holdscribe", "config", cfg.Paths.ConfigFile, "pid", os.Getpid())

	app := NewApp()
	services, err := bootstrap.Build(cfg, app)
	if err != nil {
		hlog.Error("startup failed", "error", err)
		return err
	}
	app.attach(services)

	err = wails.Run(&options.App{
		Title:            "holdscribe",
		Width:            320,
		Height:           72,
		Frameless:        true,
		AlwaysOnTop:      true,
		DisableResize:    true,
		BackgroundColour: &options.RGBA{R: 0, G: 0, B: 0, A: 0},
		AssetServer:      &assetserver.Options{Assets: assets},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind:             []interface{}{app},
	})
	if err != nil {
		hlog.Error("ui exited with error", "error", err)
		return err
	}
	hlog.Info("holdscribe stopped")
	return nil
}
