package graphapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNoResult = errors.New("graphapi: node value has no result field")

type nodeValueKind int

const (
	kindIndexed nodeValueKind = iota
	kindKeyed
)

// NodeValue is the output of an executed node. ComfyUI nodes return either a
// plain tuple (a JSON array) or an object carrying the tuple under "result"
// alongside UI data; At reads either form by position.
type NodeValue struct {
	kind    nodeValueKind
	indexed []json.RawMessage
	keyed   map[string]json.RawMessage
}

func (v *NodeValue) UnmarshalJSON(b []byte) error {
	var list []json.RawMessage
	if err := json.Unmarshal(b, &list); err == nil {
		v.kind = kindIndexed
		v.indexed = list
		v.keyed = nil
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("node value must be an array or an object: %w", err)
	}
	v.kind = kindKeyed
	v.keyed = obj
	v.indexed = nil
	return nil
}

// IsIndexed reports whether the value was a plain array.
func (v NodeValue) IsIndexed() bool {
	return v.kind == kindIndexed
}

// Field returns the raw value stored under key for keyed values.
func (v NodeValue) Field(key string) (json.RawMessage, bool) {
	if v.kind != kindKeyed {
		return nil, false
	}
	raw, ok := v.keyed[key]
	return raw, ok
}

// Keys lists the fields of a keyed value.
func (v NodeValue) Keys() []string {
	keys := make([]string, 0, len(v.keyed))
	for k := range v.keyed {
		keys = append(keys, k)
	}
	return keys
}

// At returns element i of an indexed value, or element i of the "result"
// field of a keyed value.
func (v NodeValue) At(i int) (json.RawMessage, error) {
	list := v.indexed
	if v.kind == kindKeyed {
		raw, ok := v.keyed["result"]
		if !ok {
			return nil, ErrNoResult
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("result field is not an array: %w", err)
		}
	}
	if i < 0 || i >= len(list) {
		return nil, fmt.Errorf("index %d out of range [0,%d)", i, len(list))
	}
	return list[i], nil
}

// Len returns the number of positional elements.
func (v NodeValue) Len() int {
	if v.kind == kindIndexed {
		return len(v.indexed)
	}
	raw, ok := v.keyed["result"]
	if !ok {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return 0
	}
	return len(list)
}
