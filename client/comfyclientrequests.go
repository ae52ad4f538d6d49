package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

/*
@routes.get("/view")
@routes.get("/system_stats")
@routes.get("/prompt")
@routes.get("/object_info/{node_class}")

@routes.post("/prompt")
@routes.post("/interrupt")
@routes.post("/upload/image")
*/

// maxErrorBody caps how much of an unexpected response is quoted in errors.
const maxErrorBody = 512

func (c *ComfyClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("comfy: building %s %s: %w", method, path, err)
	}
	return req, nil
}

// do sends req and returns the body of a 200 response.
func (c *ComfyClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("comfy: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("comfy: reading %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return body, &StatusError{Path: req.URL.Path, StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}

// StatusError is returned for responses other than 200 OK.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("comfy: %s returned %d: %s", e.Path, e.StatusCode, e.Body)
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

func (c *ComfyClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("comfy: decoding %s: %w", path, err)
	}
	return nil
}

func (c *ComfyClient) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	retv := &SystemStats{}
	if err := c.getJSON(ctx, "/system_stats", retv); err != nil {
		return nil, err
	}
	return retv, nil
}

func (c *ComfyClient) GetQueueExecutionInfo(ctx context.Context) (*QueueExecInfo, error) {
	queueExec := &QueueExecInfo{}
	if err := c.getJSON(ctx, "/prompt", queueExec); err != nil {
		return nil, err
	}
	return queueExec, nil
}

// GetObjectInfo describes one node class, including the choices of its combo
// inputs (installed models, input images).
func (c *ComfyClient) GetObjectInfo(ctx context.Context, nodeClass string) (*graphapi.NodeObject, error) {
	result := &graphapi.NodeObjects{}
	if err := c.getJSON(ctx, "/object_info/"+url.PathEscape(nodeClass), &result.Objects); err != nil {
		return nil, err
	}
	obj := result.GetNodeObjectByName(nodeClass)
	if obj == nil {
		return nil, fmt.Errorf("comfy: server does not know node class %q", nodeClass)
	}
	return obj, nil
}

// GetImage downloads an output file reported in an "executed" event.
func (c *ComfyClient) GetImage(ctx context.Context, imageData DataOutput) ([]byte, error) {
	params := url.Values{}
	params.Add("filename", imageData.Filename)
	params.Add("subfolder", imageData.Subfolder)
	params.Add("type", imageData.Type)

	req, err := c.newRequest(ctx, http.MethodGet, "/view?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// QueuePrompt submits prompt and registers the returned QueueItem so that
// websocket events are routed to it. A dropped websocket, such as after a
// server restart, is reconnected first.
func (c *ComfyClient) QueuePrompt(ctx context.Context, prompt *graphapi.Prompt) (*QueueItem, error) {
	if !c.IsInitialized() {
		c.logger.Info("websocket not connected, reconnecting", zap.String("url", c.baseURL))
		if err := c.Connect(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
	}
	if prompt.ClientID == "" {
		prompt.ClientID = c.clientid
	}

	data, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("comfy: encoding prompt: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/prompt", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// prevent a race where the ws may provide messages about a queued item before
	// we add the item to our internal map
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := c.do(req)
	if err != nil {
		if se, ok := err.(*StatusError); ok {
			// {"error": {"type": "prompt_no_outputs", "message": "Prompt has no outputs", ...}, "node_errors": []}
			perror := PromptErrorMessage{StatusCode: se.StatusCode}
			if json.Unmarshal(body, &perror) == nil && (perror.Error.Type != "" || perror.Error.Message != "") {
				return nil, &PromptRejectedError{PromptErrorMessage: perror}
			}
		}
		return nil, err
	}

	item := newQueueItem(prompt)
	if err := json.Unmarshal(body, item); err != nil {
		c.logger.Error("error unmarshalling queue response", zap.String("body", truncate(body)))
		return nil, fmt.Errorf("comfy: decoding queue response: %w", err)
	}
	if item.PromptID == "" {
		return nil, fmt.Errorf("comfy: queue response has no prompt_id: %s", truncate(body))
	}
	c.queueditems[item.PromptID] = item
	return item, nil
}

// Interrupt stops the prompt currently executing on the server.
func (c *ComfyClient) Interrupt(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/interrupt", bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}
