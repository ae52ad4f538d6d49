package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Callback interface for handling incoming WebSocket messages
type WebSocketCallback interface {
	OnMessage(message string)
	// OnDisconnect is called once when the read loop ends. err is nil after
	// a local Close.
	OnDisconnect(err error)
}

type WebSocketConnection struct {
	WebSocketURL string
	MaxRetry     int
	Callback     WebSocketCallback
	Logger       *zap.Logger

	// Exponential backoff configuration
	BaseDelay time.Duration // The initial delay, e.g., 1 second
	MaxDelay  time.Duration // The maximum delay, e.g., 1 minute
	Dialer    websocket.Dialer

	mu         sync.Mutex // guards conn, connected, closing and RetryCount
	conn       *websocket.Conn
	connected  bool
	closing    bool
	RetryCount int
	done       chan struct{}
}

// Connect dials the server, retrying with exponential backoff, and starts
// the read loop on success.
func (w *WebSocketConnection) Connect(ctx context.Context) error {
	logger := w.logger()
	var lastErr error
	for attempt := 0; attempt <= w.MaxRetry; attempt++ {
		if attempt > 0 {
			delay := w.getReconnectDelay()
			logger.Debug("retrying websocket connection", zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}

		conn, _, err := w.Dialer.DialContext(ctx, w.WebSocketURL, nil)
		if err != nil {
			lastErr = err
			logger.Warn("connection attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
			if ctx.Err() != nil {
				return errors.Join(ctx.Err(), lastErr)
			}
			continue
		}

		w.mu.Lock()
		w.conn = conn
		w.connected = true
		w.closing = false
		w.RetryCount = 0
		w.done = make(chan struct{})
		done := w.done
		w.mu.Unlock()

		go w.handleMessages(conn, done)
		return nil
	}
	return fmt.Errorf("maximum number of retries reached (%d): %w", w.MaxRetry, lastErr)
}

// Connected reports whether the read loop is running.
func (w *WebSocketConnection) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// Close closes the connection and waits for the read loop to finish.
func (w *WebSocketConnection) Close() error {
	w.mu.Lock()
	conn, done := w.conn, w.done
	if conn == nil {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	w.mu.Unlock()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	<-done
	return err
}

// Handle incoming WebSocket messages
func (w *WebSocketConnection) handleMessages(conn *websocket.Conn, done chan struct{}) {
	var readErr error
	defer func() {
		conn.Close()
		w.mu.Lock()
		closing := w.closing
		w.connected = false
		w.conn = nil
		w.mu.Unlock()

		if closing {
			readErr = nil
		} else {
			w.logger().Warn("websocket read failed", zap.Error(readErr))
			readErr = fmt.Errorf("%w: %v", ErrConnectionLost, readErr)
		}
		if w.Callback != nil {
			w.Callback.OnDisconnect(readErr)
		}
		close(done)
	}()
	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		// previews are sent as binary frames; only status events are text
		if msgType != websocket.TextMessage {
			continue
		}
		if w.Callback != nil {
			w.Callback.OnMessage(string(message))
		}
	}
}

// exponential backoff calculation
func (w *WebSocketConnection) getReconnectDelay() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Calculate the delay as BaseDelay * 2^(RetryCount), capped at MaxDelay
	delay := w.BaseDelay * time.Duration(math.Pow(2, float64(w.RetryCount)))
	if w.MaxDelay > 0 && delay > w.MaxDelay {
		delay = w.MaxDelay
	}
	w.RetryCount++ // Increment the retry counter for the next attempt
	return delay
}

func (w *WebSocketConnection) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
