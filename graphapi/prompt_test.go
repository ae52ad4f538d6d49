package graphapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAssignsSequentialIDs(t *testing.T) {
	b := NewBuilder()
	ckpt := b.Add("CheckpointLoaderSimple", map[string]any{"ckpt_name": "sd_xl_base_1.0.safetensors"})
	enc := b.Add("CLIPTextEncode", map[string]any{"text": "a cat", "clip": ckpt.Out(1)})

	assert.Equal(t, "1", ckpt.ID)
	assert.Equal(t, "2", enc.ID)
	assert.Equal(t, 2, b.Len())

	node, ok := b.Node("2")
	require.True(t, ok)
	assert.Equal(t, "CLIPTextEncode", node.ClassType)
	assert.Equal(t, Link{"1", 1}, node.Inputs["clip"])
}

func TestPromptSerializesLinks(t *testing.T) {
	b := NewBuilder()
	ckpt := b.Add("CheckpointLoaderSimple", map[string]any{"ckpt_name": "model.safetensors"})
	b.Add("CLIPTextEncode", map[string]any{"text": "a cat", "clip": ckpt.Out(1)})

	p, err := b.Prompt("client-1")
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded struct {
		ClientID string `json:"client_id"`
		Prompt   map[string]struct {
			ClassType string         `json:"class_type"`
			Inputs    map[string]any `json:"inputs"`
		} `json:"prompt"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "client-1", decoded.ClientID)
	require.Len(t, decoded.Prompt, 2)
	assert.Equal(t, []any{"1", float64(1)}, decoded.Prompt["2"].Inputs["clip"])
	assert.NotContains(t, string(data), "extra_data")
}

func TestPromptRejectsDanglingLink(t *testing.T) {
	b := NewBuilder()
	b.Add("VAEDecode", map[string]any{"samples": Link{"9", 0}})

	_, err := b.Prompt("client-1")
	assert.Error(t, err)
}

func TestNodeValueIndexed(t *testing.T) {
	var v NodeValue
	require.NoError(t, json.Unmarshal([]byte(`["model", "clip", "vae"]`), &v))

	assert.True(t, v.IsIndexed())
	assert.Equal(t, 3, v.Len())

	raw, err := v.At(1)
	require.NoError(t, err)
	assert.JSONEq(t, `"clip"`, string(raw))

	_, err = v.At(3)
	assert.Error(t, err)
}

func TestNodeValueKeyedResult(t *testing.T) {
	var v NodeValue
	require.NoError(t, json.Unmarshal([]byte(`{"ui": {"images": []}, "result": [{"filename": "a.png"}, 7]}`), &v))

	assert.False(t, v.IsIndexed())
	assert.Equal(t, 2, v.Len())

	raw, err := v.At(0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"filename": "a.png"}`, string(raw))

	ui, ok := v.Field("ui")
	require.True(t, ok)
	assert.JSONEq(t, `{"images": []}`, string(ui))
}

func TestNodeValueKeyedWithoutResult(t *testing.T) {
	var v NodeValue
	require.NoError(t, json.Unmarshal([]byte(`{"images": []}`), &v))

	_, err := v.At(0)
	assert.ErrorIs(t, err, ErrNoResult)
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, []string{"images"}, v.Keys())
}

func TestNodeValueRejectsScalar(t *testing.T) {
	var v NodeValue
	assert.Error(t, json.Unmarshal([]byte(`42`), &v))
}
