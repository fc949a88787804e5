package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a context on SIGINT or SIGTERM and tells the
// user what state the store is in.
type InterruptHandler struct {
	writer      io.Writer
	stage       string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a new interrupt handler.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{writer: writer}
}

// SetStage records the stage currently running, for the interrupt message.
func (h *InterruptHandler) SetStage(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stage = stage
}

// HandleInterrupts returns a context canceled on SIGINT or SIGTERM. The stop
// function releases the signal subscription and cancels the context without
// reporting an interrupt.
func (h *InterruptHandler) HandleInterrupts(parent context.Context) (context.Context, func()) {
	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)

	unregister := context.AfterFunc(ctx, func() {
		if parent.Err() == nil {
			h.interrupt()
		}
	})

	return ctx, func() {
		unregister()
		stopSignals()
	}
}

func (h *InterruptHandler) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return
	}
	h.interrupted = true

	msg := "\n\n" + FormatWarning("Pipeline interrupted!")
	if h.stage != "" {
		msg += "\n" + FormatInfo(fmt.Sprintf("The %s stage did not commit; the store still holds the previous stage's table.", h.stage))
	}
	msg += "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted returns true if the process was interrupted.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
