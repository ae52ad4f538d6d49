package pipeline

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// WatchSignals returns a context cancelled by the first SIGINT or SIGTERM.
// A second signal runs onForce, when set, and exits the process with status 1
// without waiting for the queue to drain. Call stop to release the signal
// handler.
func WatchSignals(parent context.Context, logger *zap.Logger, onForce func()) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go handleSignals(sigs, done, cancel, onForce, os.Exit, logger)

	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel()
	}
}

func handleSignals(sigs <-chan os.Signal, done <-chan struct{}, cancel context.CancelFunc, onForce func(), exit func(int), logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	count := 0
	for {
		select {
		case <-done:
			return
		case sig := <-sigs:
			count++
			if count == 1 {
				logger.Info("received shutdown signal, finishing queued jobs; signal again to force exit",
					zap.String("signal", sig.String()))
				cancel()
				continue
			}
			logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			if onForce != nil {
				onForce()
			}
			exit(1)
			return
		}
	}
}
