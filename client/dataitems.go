package client

import (
	"encoding/json"
	"fmt"
)

// There may be other DataOutput types. Text outputs carry Type "text".

type DataOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
	Text      string `json:"-"` // for "text" type data output
}

type SystemStats struct {
	System  System `json:"system"`
	Devices []GPU  `json:"devices"`
}

type System struct {
	OS             string `json:"os"`
	PythonVersion  string `json:"python_version"`
	EmbeddedPython bool   `json:"embedded_python"`
	ComfyUIVersion string `json:"comfyui_version"`
}

type GPU struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Index            int    `json:"index"`
	VRAM_Total       int64  `json:"vram_total"`
	VRAM_Free        int64  `json:"vram_free"`
	Torch_VRAM_Total int64  `json:"torch_vram_total"`
	Torch_VRAM_Free  int64  `json:"torch_vram_free"`
}

type QueueExecInfo struct {
	ExecInfo struct {
		QueueRemaining int `json:"queue_remaining"`
	} `json:"exec_info"`
}

type PromptError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details"`
	ExtraInfo map[string]interface{} `json:"extra_info"`
}

// PromptErrorMessage is the body ComfyUI returns when it refuses a prompt.
// node_errors is an object keyed by node id, or an empty array.
type PromptErrorMessage struct {
	Error      PromptError     `json:"error"`
	NodeErrors json.RawMessage `json:"node_errors"`
	StatusCode int             `json:"-"`
}

// PromptRejectedError is returned by QueuePrompt when the server does not
// accept the prompt.
type PromptRejectedError struct {
	PromptErrorMessage
}

func (e *PromptRejectedError) Error() string {
	msg := e.PromptErrorMessage.Error.Message
	if msg == "" {
		msg = e.PromptErrorMessage.Error.Type
	}
	if d := e.PromptErrorMessage.Error.Details; d != "" {
		msg += ": " + d
	}
	return fmt.Sprintf("comfy: prompt rejected (status %d): %s", e.StatusCode, msg)
}
