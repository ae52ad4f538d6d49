package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotConnected   = errors.New("comfy: websocket is not connected")
	ErrExecution      = errors.New("comfy: prompt execution failed")
	ErrInterrupted    = errors.New("comfy: prompt execution interrupted")
	ErrConnectionLost = errors.New("comfy: websocket connection lost")
)

type QueuedItemStoppedReason string

const (
	QueuedItemStoppedReasonFinished    QueuedItemStoppedReason = "finished"
	QueuedItemStoppedReasonInterrupted QueuedItemStoppedReason = "interrupted"
	QueuedItemStoppedReasonError       QueuedItemStoppedReason = "error"
)

type ComfyClientCallbacks struct {
	ClientQueueCountChanged func(*ComfyClient, int)
	QueuedItemStarted       func(*ComfyClient, *QueueItem)
	QueuedItemStopped       func(*ComfyClient, *QueueItem, QueuedItemStoppedReason)
	QueuedItemDataAvailable func(*ComfyClient, *QueueItem, *PromptMessageData)
}

// ComfyClient is the top level object that allows for interaction with the ComfyUI backend
type ComfyClient struct {
	baseURL    string
	wsURL      string
	clientid   string
	callbacks  *ComfyClientCallbacks
	httpclient *http.Client
	webSocket  *WebSocketConnection
	logger     *zap.Logger

	// connMu serializes Connect so concurrent reconnects dial once.
	connMu sync.Mutex

	// mu guards the fields below. QueuePrompt holds it across the POST so
	// websocket events for a new prompt wait until the item is registered.
	mu                    sync.Mutex
	queueditems           map[string]*QueueItem
	lastProcessedPromptID string
}

// NewComfyClient creates a client for the ComfyUI server at baseURL
// (e.g. http://127.0.0.1:8188). Call Connect before queueing prompts.
func NewComfyClient(baseURL string, callbacks *ComfyClientCallbacks, logger *zap.Logger) (*ComfyClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("comfy: parsing server url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("comfy: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("comfy: server url %q has no host", baseURL)
	}

	cid := uuid.New().String()
	ws := *u
	ws.Scheme = "ws"
	if u.Scheme == "https" {
		ws.Scheme = "wss"
	}
	ws.Path = u.Path + "/ws"
	ws.RawQuery = url.Values{"clientId": {cid}}.Encode()

	c := &ComfyClient{
		baseURL:     u.String(),
		wsURL:       ws.String(),
		clientid:    cid,
		callbacks:   callbacks,
		httpclient:  &http.Client{},
		logger:      logger,
		queueditems: make(map[string]*QueueItem),
	}
	c.webSocket = &WebSocketConnection{
		WebSocketURL: c.wsURL,
		MaxRetry:     5,
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Callback:     c,
		Logger:       logger.Named("ws"),
	}
	return c, nil
}

// Connect opens the websocket used for execution events. It retries with
// exponential backoff until the connection succeeds, the retry budget is
// spent or ctx is done. It does nothing while the websocket is connected.
func (c *ComfyClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.IsInitialized() {
		return nil
	}
	if err := c.webSocket.Connect(ctx); err != nil {
		return fmt.Errorf("comfy: connecting to %s: %w", c.baseURL, err)
	}
	c.logger.Info("connected to ComfyUI", zap.String("url", c.baseURL), zap.String("client_id", c.clientid))
	return nil
}

// Close shuts the websocket down. Pending queue items are stopped with
// ErrConnectionLost.
func (c *ComfyClient) Close() error {
	return c.webSocket.Close()
}

// IsInitialized returns true if the client's websocket is connected
func (c *ComfyClient) IsInitialized() bool {
	return c.webSocket.Connected()
}

// ClientID returns the unique client ID for the connection to the ComfyUI backend
func (c *ComfyClient) ClientID() string {
	return c.clientid
}

// BaseURL returns the HTTP endpoint of the server.
func (c *ComfyClient) BaseURL() string {
	return c.baseURL
}

// GetQueuedItem returns a QueueItem that was queued with the ComfyClient, that has not been processed yet
// or is currently being processed.  Once a QueueItem has been processed, it will not be available with this method.
func (c *ComfyClient) GetQueuedItem(promptID string) *QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueditems[promptID]
}

func (c *ComfyClient) removeQueuedItem(qi *QueueItem) {
	c.mu.Lock()
	delete(c.queueditems, qi.PromptID)
	c.mu.Unlock()
}

// OnMessage processes each message received from the websocket connection to ComfyUI.
// The messages are parsed, translated into PromptMessage values and delivered to the
// QueueItem they belong to.
func (c *ComfyClient) OnMessage(msg string) {
	message := &WSStatusMessage{}
	if err := json.Unmarshal([]byte(msg), message); err != nil {
		c.logger.Error("decoding websocket message", zap.Error(err))
		return
	}

	c.mu.Lock()
	promptID := message.PromptID()
	if s, ok := message.Data.(*WSMessageDataExecutionStart); ok {
		c.lastProcessedPromptID = s.PromptID
	}
	if promptID == "" {
		// older servers omit prompt_id on progress events
		if _, ok := message.Data.(*WSMessageDataProgress); ok {
			promptID = c.lastProcessedPromptID
		}
	}
	var qi *QueueItem
	if promptID != "" {
		qi = c.queueditems[promptID]
	}
	c.mu.Unlock()

	switch s := message.Data.(type) {
	case *WSMessageDataStatus:
		remaining := s.Status.ExecInfo.QueueRemaining
		if c.callbacks != nil && c.callbacks.ClientQueueCountChanged != nil {
			c.callbacks.ClientQueueCountChanged(c, remaining)
		}
	case *WSMessageDataExecutionStart:
		if qi == nil {
			return
		}
		if c.callbacks != nil && c.callbacks.QueuedItemStarted != nil {
			c.callbacks.QueuedItemStarted(c, qi)
		}
		qi.deliver(PromptMessage{Type: "started", Message: &PromptMessageStarted{PromptID: qi.PromptID}})
	case *WSMessageDataExecutionCached:
		// nothing to report
	case *WSMessageDataExecuting:
		if qi == nil {
			return
		}
		if s.Node == nil {
			// final node was processed
			c.stop(qi, QueuedItemStoppedReasonFinished, nil)
			return
		}
		qi.deliver(PromptMessage{Type: "executing", Message: &PromptMessageExecuting{
			NodeID: *s.Node,
			Title:  qi.nodeTitle(*s.Node),
		}})
	case *WSMessageDataProgress:
		if qi == nil {
			return
		}
		qi.deliver(PromptMessage{Type: "progress", Message: &PromptMessageProgress{
			NodeID: s.Node,
			Value:  s.Value,
			Max:    s.Max,
		}})
	case *WSMessageDataExecuted:
		if qi == nil {
			return
		}
		mdata := &PromptMessageData{NodeID: s.Node, Data: s.Output}
		if c.callbacks != nil && c.callbacks.QueuedItemDataAvailable != nil {
			c.callbacks.QueuedItemDataAvailable(c, qi, mdata)
		}
		qi.deliver(PromptMessage{Type: "data", Message: mdata})
	case *WSMessageExecutionSuccess:
		if qi == nil {
			return
		}
		qi.deliver(PromptMessage{Type: "execution_success", Message: &PromptMessageExecutionSuccess{PromptID: s.PromptID}})
		c.stop(qi, QueuedItemStoppedReasonFinished, nil)
	case *WSMessageExecutionInterrupted:
		if qi == nil {
			return
		}
		c.stop(qi, QueuedItemStoppedReasonInterrupted, &PromptMessageStoppedException{
			NodeID:        s.Node,
			NodeType:      s.NodeType,
			NodeName:      qi.nodeTitle(s.Node),
			ExceptionType: "interrupted",
			Interrupted:   true,
		})
	case *WSMessageExecutionError:
		if qi == nil {
			return
		}
		c.stop(qi, QueuedItemStoppedReasonError, &PromptMessageStoppedException{
			NodeID:           s.Node,
			NodeType:         s.NodeType,
			NodeName:         qi.nodeTitle(s.Node),
			ExceptionMessage: s.ExceptionMessage,
			ExceptionType:    s.ExceptionType,
			Traceback:        s.Traceback,
		})
	default:
		if message.Type != "crystools.monitor" {
			c.logger.Debug("unhandled websocket message", zap.String("type", message.Type))
		}
	}
}

// OnDisconnect stops every queued item; no more events will arrive for them.
func (c *ComfyClient) OnDisconnect(err error) {
	c.mu.Lock()
	items := make([]*QueueItem, 0, len(c.queueditems))
	for _, qi := range c.queueditems {
		items = append(items, qi)
	}
	c.mu.Unlock()

	if len(items) > 0 {
		c.logger.Warn("websocket closed with prompts in flight", zap.Int("pending", len(items)), zap.Error(err))
	}
	for _, qi := range items {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		c.stop(qi, QueuedItemStoppedReasonError, &PromptMessageStoppedException{
			ExceptionType:    "connection_lost",
			ExceptionMessage: msg,
			ConnectionLost:   true,
		})
	}
}

// stop removes the item from the queue before sending the final message;
// no other messages are sent to the item after this.
func (c *ComfyClient) stop(qi *QueueItem, reason QueuedItemStoppedReason, exc *PromptMessageStoppedException) {
	c.mu.Lock()
	_, pending := c.queueditems[qi.PromptID]
	delete(c.queueditems, qi.PromptID)
	c.mu.Unlock()
	if !pending {
		return
	}

	if c.callbacks != nil && c.callbacks.QueuedItemStopped != nil {
		c.callbacks.QueuedItemStopped(c, qi, reason)
	}
	qi.deliver(PromptMessage{Type: "stopped", Message: &PromptMessageStopped{
		QueueItem: qi,
		Exception: exc,
	}})
}
