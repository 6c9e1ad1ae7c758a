package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if a.engine != nil {
		a.engine.Close()
	}
	a.scanner.Wait()
	a.whaleService.Stop()
	a.whaleCache.Wait()

	err = a.books.Close()
	if err != nil {
		a.logger.Error("book-manager-close-error", zap.Error(err))
	}

	err = a.ws.Close()
	if err != nil {
		a.logger.Error("websocket-manager-close-error", zap.Error(err))
	}

	if a.trader != nil {
		a.trader.Close()
	}

	err = a.store.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
