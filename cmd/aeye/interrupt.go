package main

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/client"
)

const interruptTimeout = 2 * time.Second

// serverInterrupter asks the connected ComfyUI server to stop the prompt it
// is running. It is the force hook handed to pipeline.WatchSignals.
type serverInterrupter struct {
	comfy  atomic.Pointer[client.ComfyClient]
	logger *zap.Logger
}

func (s *serverInterrupter) interrupt() {
	comfy := s.comfy.Load()
	if comfy == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), interruptTimeout)
	defer cancel()
	if err := comfy.Interrupt(ctx); err != nil {
		s.logger.Warn("could not interrupt the running prompt", zap.Error(err))
		return
	}
	s.logger.Info("interrupted the running prompt", zap.String("url", comfy.BaseURL()))
}
