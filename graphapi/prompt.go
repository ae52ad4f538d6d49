package graphapi

import (
	"fmt"
	"sort"
	"strconv"
)

// Prompt is the data that is enqueued to an instance of ComfyUI
type Prompt struct {
	ClientID  string                `json:"client_id"`
	Nodes     map[string]PromptNode `json:"prompt"`
	ExtraData map[string]any        `json:"extra_data,omitempty"`
}

type PromptNode struct {
	// Inputs can be one of:
	//	float64, int, uint64
	//	string
	//	Link ([0] is the string id of the source node, [1] is the output slot index)
	Inputs    map[string]any `json:"inputs"`
	ClassType string         `json:"class_type"`
}

// Link references an output slot of another node in the same prompt.
// It serializes as ["<node id>", slot].
type Link [2]any

// NodeRef is a handle to a node added to a Builder.
type NodeRef struct {
	ID        string
	ClassType string
}

// Out returns a link to output slot i of the node.
func (r NodeRef) Out(i int) Link {
	return Link{r.ID, i}
}

// Builder assembles an API-format prompt node by node. Node ids are
// assigned sequentially starting at "1" in the order nodes are added.
type Builder struct {
	nodes map[string]PromptNode
	next  int
}

func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]PromptNode), next: 1}
}

// Add appends a node of the given class and returns its reference.
func (b *Builder) Add(classType string, inputs map[string]any) NodeRef {
	id := strconv.Itoa(b.next)
	b.next++
	if inputs == nil {
		inputs = make(map[string]any)
	}
	b.nodes[id] = PromptNode{ClassType: classType, Inputs: inputs}
	return NodeRef{ID: id, ClassType: classType}
}

// Node returns the node with the given id.
func (b *Builder) Node(id string) (PromptNode, bool) {
	n, ok := b.nodes[id]
	return n, ok
}

// Len reports the number of nodes added so far.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Prompt validates that every link points at an existing node and returns
// the finished prompt for clientID.
func (b *Builder) Prompt(clientID string) (*Prompt, error) {
	ids := make([]string, 0, len(b.nodes))
	for id := range b.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := b.nodes[id]
		for name, in := range node.Inputs {
			link, ok := in.(Link)
			if !ok {
				continue
			}
			target, _ := link[0].(string)
			if _, exists := b.nodes[target]; !exists {
				return nil, fmt.Errorf("node %s (%s) input %q links to missing node %q", id, node.ClassType, name, target)
			}
		}
	}

	return &Prompt{
		ClientID: clientID,
		Nodes:    b.nodes,
	}, nil
}
