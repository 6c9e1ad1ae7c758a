package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	mode := "observer"
	if a.engine != nil {
		mode = "trading"
	}

	a.logger.Info("application-starting",
		zap.String("mode", mode),
		zap.String("log-level", a.cfg.LogLevel),
		zap.String("storage-mode", a.cfg.StorageMode))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", a.cfg.APIHost+":"+a.cfg.APIPort),
		zap.String("ws-url", a.cfg.WSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give the HTTP listener a moment to bind before readiness flips.
	time.Sleep(100 * time.Millisecond)

	err := a.ws.Start()
	if err != nil {
		return fmt.Errorf("start websocket manager: %w", err)
	}

	err = a.books.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start book manager: %w", err)
	}

	a.scanner.Start(a.ctx)
	a.whaleCache.Start(a.ctx)

	if a.engine != nil {
		a.engine.Start(a.ctx)

		a.wg.Add(1)
		go a.runMarketMonitor()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
