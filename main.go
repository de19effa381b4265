package main

import (
	"embed"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"leo/internal/config"
	"leo/internal/observability"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	cfg, cfgErr := config.Load()
	logger := observability.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if cfgErr != nil {
		logger.Error().Err(cfgErr).Msg("failed to load configuration")
	}

	app := NewApp(cfg, cfgErr, logger)

	err := wails.Run(&options.App{
		Title:     "Leo",
		Width:     1024,
		Height:    768,
		MinWidth:  480,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Logger:     observability.NewWailsLogger(logger),
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("wails exited")
	}
}
