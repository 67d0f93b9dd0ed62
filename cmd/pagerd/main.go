package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/dougsko/pagerd/pkg/config"
	"github.com/dougsko/pagerd/pkg/engine"
	"github.com/dougsko/pagerd/pkg/hardware"
	"github.com/dougsko/pagerd/pkg/hardware/soapy"
	"github.com/dougsko/pagerd/pkg/logging"
)

const Build = "development"

var cli struct {
	Config  string `help:"Configuration file path" default:"config.yaml" type:"path"`
	Verbose bool   `help:"Force debug logging"`

	Run     struct{} `cmd:"" default:"1" help:"Run the pager daemon"`
	Probe   struct{} `cmd:"" help:"List SoapySDR modules and TX capable devices"`
	Version struct{} `cmd:"" help:"Show version information"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("pagerd"),
		kong.Description("POCSAG pager transmitter daemon"),
	)

	switch ctx.Command() {
	case "version":
		fmt.Printf("pagerd version %s (%s)\n", engine.Version, Build)
		return

	case "probe":
		if cli.Verbose {
			logging.GetGlobalLogger().SetLevel(logging.LevelDebug)
		}
		soapy.LogDevices()
		return
	}

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		logging.Errorf("main", "Failed to load configuration: %v", err)
		os.Exit(1)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		logging.Errorf("main", "Failed to initialize logging: %v", err)
		os.Exit(1)
	}
	defer logging.CloseGlobalLogger()

	if cli.Verbose {
		logging.GetGlobalLogger().SetLevel(logging.LevelDebug)
	}

	logging.Infof("main", "pagerd version %s starting...", engine.Version)
	if cfg.Radio.Mock {
		logging.Info("main", "Radio: mock transmitter")
	} else {
		logging.Infof("main", "Radio: %s at %d S/s", cfg.Radio.Driver, cfg.Radio.SampleRate)
	}
	logging.Infof("main", "Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port)

	daemon, err := NewPagerDaemon(cfg, newOpener(cfg))
	if err != nil {
		logging.Errorf("main", "Failed to create daemon: %v", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Errorf("main", "Failed to start daemon: %v", err)
		os.Exit(1)
	}

	logging.Info("main", "pagerd started successfully")

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Errorf("main", "Error during shutdown: %v", err)
	}

	logging.Info("main", "pagerd stopped")
}

// loadConfig reads path, falling back to defaults when it does not exist,
// then applies environment overrides and validates
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		logging.Warnf("main", "Config file %s not found, using defaults", path)
		cfg = config.Default()
	}

	overrides, err := config.ApplyEnv(cfg)
	if err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	for _, key := range overrides {
		logging.Infof("main", "Config override from environment: %s", key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newOpener(cfg *config.Config) hardware.Opener {
	if cfg.Radio.Mock {
		return engine.MockOpener(cfg)
	}
	return soapy.NewOpener(soapy.Config{
		Driver:     cfg.Radio.Driver,
		Args:       cfg.Radio.Args,
		Channel:    uint(cfg.Radio.Channel),
		SampleRate: cfg.Radio.SampleRate,
	}, cfg.POCSAG.BasebandRate)
}
