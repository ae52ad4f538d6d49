package client

import (
	"encoding/json"
	"sync"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

// QueueItem is a prompt accepted by the server. Its execution events are
// delivered on Messages, ending with a "stopped" message.
type QueueItem struct {
	PromptID   string             `json:"prompt_id"`
	Number     int                `json:"number"`
	NodeErrors json.RawMessage    `json:"node_errors"`
	Messages   chan PromptMessage `json:"-"`
	Prompt     *graphapi.Prompt   `json:"-"`

	abandonOnce sync.Once
	abandoned   chan struct{}
}

func newQueueItem(prompt *graphapi.Prompt) *QueueItem {
	return &QueueItem{
		Prompt:    prompt,
		Messages:  make(chan PromptMessage, 16),
		abandoned: make(chan struct{}),
	}
}

// deliver blocks until the consumer takes m or stops listening.
func (qi *QueueItem) deliver(m PromptMessage) {
	select {
	case qi.Messages <- m:
	case <-qi.abandoned:
	}
}

// abandon tells the sender that nobody reads Messages any more.
func (qi *QueueItem) abandon() {
	qi.abandonOnce.Do(func() { close(qi.abandoned) })
}

// nodeTitle names a node by its class type, falling back to the id. Ids of
// nodes expanded from groups look like "57:8"; the part before the colon
// is the node in the submitted prompt.
func (qi *QueueItem) nodeTitle(id string) string {
	if qi.Prompt == nil || id == "" {
		return id
	}
	if n, ok := qi.Prompt.Nodes[id]; ok {
		return n.ClassType
	}
	for i := 0; i < len(id); i++ {
		if id[i] == ':' {
			if n, ok := qi.Prompt.Nodes[id[:i]]; ok {
				return n.ClassType
			}
			break
		}
	}
	return id
}
