package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

// MessageHandlers defines optional callback functions for handling different message types
// from a QueueItem. All handlers are optional - only provide handlers for the messages you care about.
type MessageHandlers struct {
	// OnStarted is called when execution begins
	OnStarted func(*PromptMessageStarted)

	// OnExecuting is called when a node starts executing
	OnExecuting func(*PromptMessageExecuting)

	// OnProgress is called with progress updates during node execution
	OnProgress func(*PromptMessageProgress)

	// OnData is called when output data is available
	OnData func(*PromptMessageData)

	// OnExecutionSuccess is called when execution completes successfully
	OnExecutionSuccess func(*PromptMessageExecutionSuccess)

	// OnStopped is called when execution stops (success, error, or interruption)
	OnStopped func(*PromptMessageStopped)

	// OnError is called if there was an exception during execution
	// This is called before OnStopped when an error occurs
	OnError func(*PromptMessageStoppedException)

	// OnComplete is called after the message loop exits, regardless of success or failure
	OnComplete func()
}

// DefaultMessageHandlers returns MessageHandlers that log started, executing,
// error and stopped messages at debug and error level.
func DefaultMessageHandlers(logger *zap.Logger) *MessageHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandlers{
		OnStarted: func(msg *PromptMessageStarted) {
			logger.Debug("execution started", zap.String("prompt_id", msg.PromptID))
		},
		OnExecuting: func(msg *PromptMessageExecuting) {
			logger.Debug("executing node", zap.String("node_id", msg.NodeID), zap.String("title", msg.Title))
		},
		OnError: func(err *PromptMessageStoppedException) {
			logger.Error("execution error",
				zap.String("node_id", err.NodeID),
				zap.String("node_type", err.NodeType),
				zap.String("exception_type", err.ExceptionType),
				zap.String("error", err.ExceptionMessage),
			)
		},
		OnStopped: func(msg *PromptMessageStopped) {
			if msg.Exception == nil {
				logger.Debug("execution completed", zap.String("prompt_id", msg.QueueItem.PromptID))
			}
		},
	}
}

// WithProgressHandler adds a progress handler (builder pattern)
func (h *MessageHandlers) WithProgressHandler(fn func(*PromptMessageProgress)) *MessageHandlers {
	h.OnProgress = fn
	return h
}

// WithDataHandler adds a data handler (builder pattern)
func (h *MessageHandlers) WithDataHandler(fn func(*PromptMessageData)) *MessageHandlers {
	h.OnData = fn
	return h
}

// WithCompleteHandler adds a complete handler (builder pattern)
func (h *MessageHandlers) WithCompleteHandler(fn func()) *MessageHandlers {
	h.OnComplete = fn
	return h
}

// ProcessMessages processes messages from the QueueItem using the provided handlers.
// It blocks until execution stops or ctx is done. The returned error wraps
// ErrExecution, ErrInterrupted or ErrConnectionLost when the prompt did not
// finish.
func (qi *QueueItem) ProcessMessages(ctx context.Context, handlers *MessageHandlers) error {
	if handlers == nil {
		handlers = &MessageHandlers{}
	}
	defer qi.abandon()

	// Ensure OnComplete is called when we exit
	if handlers.OnComplete != nil {
		defer handlers.OnComplete()
	}

	for {
		var msg PromptMessage
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg = <-qi.Messages:
		}

		switch msg.Type {
		case "started":
			if handlers.OnStarted != nil {
				handlers.OnStarted(msg.ToPromptMessageStarted())
			}

		case "executing":
			if handlers.OnExecuting != nil {
				handlers.OnExecuting(msg.ToPromptMessageExecuting())
			}

		case "progress":
			if handlers.OnProgress != nil {
				handlers.OnProgress(msg.ToPromptMessageProgress())
			}

		case "data":
			if handlers.OnData != nil {
				handlers.OnData(msg.ToPromptMessageData())
			}

		case "execution_success":
			if handlers.OnExecutionSuccess != nil {
				handlers.OnExecutionSuccess(msg.ToPromptMessageExecutionSuccess())
			}

		case "stopped":
			stopped := msg.ToPromptMessageStopped()

			var executionError error
			// Handle error first if present
			if exc := stopped.Exception; exc != nil {
				if handlers.OnError != nil {
					handlers.OnError(exc)
				}
				executionError = stoppedError(exc)
			}

			if handlers.OnStopped != nil {
				handlers.OnStopped(stopped)
			}
			return executionError
		}
	}
}

func stoppedError(exc *PromptMessageStoppedException) error {
	switch {
	case exc.ConnectionLost:
		return fmt.Errorf("%w: %s", ErrConnectionLost, exc.ExceptionMessage)
	case exc.Interrupted:
		if exc.NodeID != "" {
			return fmt.Errorf("%w at node %s (%s)", ErrInterrupted, exc.NodeID, exc.NodeType)
		}
		return ErrInterrupted
	default:
		return fmt.Errorf("%w: node %s (%s): %s - %s", ErrExecution,
			exc.NodeID, exc.NodeType, exc.ExceptionType, exc.ExceptionMessage)
	}
}

// QueuePromptAndProcess queues a prompt and processes its messages until
// execution completes, fails or ctx is done.
//
// Example:
//
//	err := client.QueuePromptAndProcess(ctx, prompt,
//	    client.DefaultMessageHandlers(logger).
//	        WithDataHandler(func(msg *client.PromptMessageData) {
//	            // handle output data
//	        }),
//	)
func (c *ComfyClient) QueuePromptAndProcess(ctx context.Context, prompt *graphapi.Prompt, handlers *MessageHandlers) error {
	item, err := c.QueuePrompt(ctx, prompt)
	if err != nil {
		return fmt.Errorf("failed to queue prompt: %w", err)
	}
	err = item.ProcessMessages(ctx, handlers)
	if ctx.Err() != nil {
		// nobody is waiting for the events any more
		c.removeQueuedItem(item)
	}
	return err
}
