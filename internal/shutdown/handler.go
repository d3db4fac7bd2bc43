// Package shutdown cancels a run on SIGINT/SIGTERM and runs cleanups.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"spotifydl/internal/logger"
)

// Handler owns the run context. The first signal cancels it and runs the
// registered cleanups; a second signal exits immediately.
type Handler struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *logger.Logger
	once       sync.Once
	mu         sync.Mutex
	cleanupFns []func()
	exit       func(code int)
}

// New creates a handler derived from parent.
func New(parent context.Context, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Handler{ctx: ctx, cancel: cancel, logger: log, exit: os.Exit}
}

// Context is cancelled on the first signal or on Shutdown.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// AddCleanup registers fn. Cleanups run in reverse registration order.
func (h *Handler) AddCleanup(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanupFns = append(h.cleanupFns, fn)
}

// Listen starts watching for interrupt signals until the context ends.
func (h *Handler) Listen() {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			h.logger.Warn("Received %s, finishing current item (press again to force quit)", sig)
			go h.Shutdown()
		case <-h.ctx.Done():
			return
		}
		<-sigChan
		h.logger.Error("Forced exit")
		h.exit(130)
	}()
}

// Shutdown cancels the context and runs cleanups. Later calls do nothing.
func (h *Handler) Shutdown() {
	h.once.Do(func() {
		h.cancel()

		h.mu.Lock()
		fns := h.cleanupFns
		h.mu.Unlock()

		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	})
}
