package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dougsko/pagerd/pkg/client"
	"github.com/dougsko/pagerd/pkg/config"
	"github.com/dougsko/pagerd/pkg/engine"
	"github.com/dougsko/pagerd/pkg/hardware"
	"github.com/dougsko/pagerd/pkg/logging"
	"github.com/dougsko/pagerd/pkg/web"
)

// PagerDaemon runs the core engine and the web server
type PagerDaemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	coreEngine   *engine.CoreEngine
	socketClient *client.SocketClient
	webServer    *http.Server
}

// NewPagerDaemon creates a daemon whose sessions open transmitters with
// opener
func NewPagerDaemon(cfg *config.Config, opener hardware.Opener) (*PagerDaemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	coreEngine, err := engine.NewCoreEngine(cfg, opener)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create core engine: %w", err)
	}

	daemon := &PagerDaemon{
		config:     cfg,
		ctx:        ctx,
		cancel:     cancel,
		coreEngine: coreEngine,
	}
	if cfg.API.UnixSocket != "" {
		daemon.socketClient = client.NewSocketClient(cfg.API.UnixSocket)
		daemon.socketClient.SetTimeout(2 * time.Second)
	}

	router := web.NewServer(ctx, cfg, coreEngine).Router()
	daemon.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Web.BindAddress, cfg.Web.Port),
		Handler: router,
	}

	return daemon, nil
}

// Start starts the engine, checks the control socket and serves the web
// API
func (d *PagerDaemon) Start() error {
	logging.Info("daemon", "Starting pagerd daemon...")

	if err := d.coreEngine.Start(); err != nil {
		return fmt.Errorf("failed to start core engine: %w", err)
	}

	if d.socketClient != nil && !d.socketClient.IsConnected() {
		d.coreEngine.Stop()
		return fmt.Errorf("failed to connect to core engine socket")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logging.Infof("daemon", "Starting web server on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("daemon", "Web server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the daemon gracefully
func (d *PagerDaemon) Stop() error {
	logging.Info("daemon", "Stopping daemon...")

	d.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.webServer.Shutdown(ctx); err != nil {
		logging.Warnf("daemon", "Web server shutdown error: %v", err)
	}

	if err := d.coreEngine.Stop(); err != nil {
		logging.Warnf("daemon", "Core engine shutdown error: %v", err)
	}

	d.wg.Wait()

	logging.Info("daemon", "Daemon stopped")
	return nil
}
