package graphapi

import (
	"bytes"
	"encoding/json"
	"strings"
)

type NodeObjects struct {
	Objects map[string]*NodeObject
}

func (n *NodeObjects) GetNodeObjectByName(name string) *NodeObject {
	val, ok := n.Objects[name]
	if ok {
		return val
	}
	return nil
}

// NodeObject is the server's description of a node class, as returned by
// /object_info.
type NodeObject struct {
	Input        *NodeObjectInput `json:"input"`
	Output       []string         `json:"output"` // output type
	OutputIsList []bool           `json:"output_is_list"`
	OutputName   []string         `json:"output_name"`
	Name         string           `json:"name"`
	DisplayName  string           `json:"display_name"`
	Description  string           `json:"description"`
	Category     string           `json:"category"`
	OutputNode   bool             `json:"output_node"`
}

// Choices returns the allowed values of a combo input, such as the model
// files a loader can open. ok is false when the node has no such combo.
// Both the list form [["a","b"], {...}] and the COMBO form
// ["COMBO", {"options": ["a","b"]}] are understood.
func (n *NodeObject) Choices(input string) (choices []string, ok bool) {
	if n.Input == nil {
		return nil, false
	}
	raw, found := n.Input.Required[input]
	if !found {
		raw, found = n.Input.Optional[input]
	}
	if !found {
		return nil, false
	}

	var def []json.RawMessage
	if err := json.Unmarshal(raw, &def); err != nil || len(def) == 0 {
		return nil, false
	}
	if err := json.Unmarshal(def[0], &choices); err == nil {
		return choices, true
	}

	var kind string
	if err := json.Unmarshal(def[0], &kind); err != nil || kind != "COMBO" || len(def) < 2 {
		return nil, false
	}
	var opts struct {
		Options []string `json:"options"`
	}
	if err := json.Unmarshal(def[1], &opts); err != nil {
		return nil, false
	}
	return opts.Options, true
}

// HasChoice reports whether value is one of the combo's choices. Folder
// separators are compared loosely because the server reports names with its
// own path separator.
func (n *NodeObject) HasChoice(input, value string) bool {
	choices, ok := n.Choices(input)
	if !ok {
		return false
	}
	want := normalizeSeparators(value)
	for _, c := range choices {
		if normalizeSeparators(c) == want {
			return true
		}
	}
	return false
}

func normalizeSeparators(s string) string {
	return strings.ReplaceAll(s, `\`, "/")
}

// NodeObjectInput keeps the raw input specs along with their declared order.
type NodeObjectInput struct {
	Required        map[string]json.RawMessage `json:"required"`
	Optional        map[string]json.RawMessage `json:"optional,omitempty"`
	OrderedRequired []string                   `json:"-"`
	OrderedOptional []string                   `json:"-"`
}

func (noi *NodeObjectInput) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return err
	} // consume opening brace

	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}

		key := t.(string)
		switch key {
		case "required", "optional":
			if _, err := dec.Token(); err != nil { // consume opening brace of nested object
				return err
			}

			currentMap := make(map[string]json.RawMessage)
			currentOrder := make([]string, 0)
			for dec.More() {
				entryKeyToken, err := dec.Token()
				if err != nil {
					return err
				}

				entryKey := entryKeyToken.(string)
				currentOrder = append(currentOrder, entryKey)

				var rawValue json.RawMessage
				if err := dec.Decode(&rawValue); err != nil {
					return err
				}
				currentMap[entryKey] = rawValue
			}

			if _, err := dec.Token(); err != nil { // consume closing brace of nested object
				return err
			}

			if key == "required" {
				noi.Required = currentMap
				noi.OrderedRequired = currentOrder
			} else {
				noi.Optional = currentMap
				noi.OrderedOptional = currentOrder
			}
		default:
			if err := dec.Decode(new(interface{})); err != nil { // consume and ignore non-expected field
				return err
			}
		}
	}

	if _, err := dec.Token(); err != nil { // consume closing brace
		return err
	}

	return nil
}
