package graphapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const objectInfo = `{
	"CheckpointLoaderSimple": {
		"input": {"required": {"ckpt_name": [["sd.safetensors", "sdxl\\base.safetensors"], {"tooltip": "model"}]}},
		"output": ["MODEL", "CLIP", "VAE"],
		"output_name": ["MODEL", "CLIP", "VAE"],
		"name": "CheckpointLoaderSimple",
		"category": "loaders"
	},
	"ControlNetLoader": {
		"input": {"required": {"control_net_name": ["COMBO", {"options": ["depth.safetensors"]}]}},
		"name": "ControlNetLoader"
	},
	"KSampler": {
		"input": {
			"required": {"model": ["MODEL"], "seed": ["INT", {"default": 0}], "steps": ["INT", {"default": 20}]},
			"optional": {"noise": ["NOISE"]},
			"hidden": {"prompt": "PROMPT"}
		},
		"name": "KSampler"
	}
}`

func decodeObjects(t *testing.T) *NodeObjects {
	t.Helper()
	objs := &NodeObjects{}
	require.NoError(t, json.Unmarshal([]byte(objectInfo), &objs.Objects))
	return objs
}

func TestNodeObjectChoices(t *testing.T) {
	objs := decodeObjects(t)

	ckpt := objs.GetNodeObjectByName("CheckpointLoaderSimple")
	require.NotNil(t, ckpt)
	choices, ok := ckpt.Choices("ckpt_name")
	require.True(t, ok)
	assert.Equal(t, []string{"sd.safetensors", `sdxl\base.safetensors`}, choices)
	assert.True(t, ckpt.HasChoice("ckpt_name", "sdxl/base.safetensors"))
	assert.False(t, ckpt.HasChoice("ckpt_name", "other.safetensors"))
	assert.Equal(t, []string{"MODEL", "CLIP", "VAE"}, ckpt.Output)

	cn := objs.GetNodeObjectByName("ControlNetLoader")
	require.NotNil(t, cn)
	assert.True(t, cn.HasChoice("control_net_name", "depth.safetensors"))

	sampler := objs.GetNodeObjectByName("KSampler")
	_, ok = sampler.Choices("seed")
	assert.False(t, ok, "INT inputs have no choices")
	_, ok = sampler.Choices("missing")
	assert.False(t, ok)

	assert.Nil(t, objs.GetNodeObjectByName("Nope"))
}

func TestNodeObjectInputKeepsOrder(t *testing.T) {
	sampler := decodeObjects(t).GetNodeObjectByName("KSampler")
	require.NotNil(t, sampler.Input)
	assert.Equal(t, []string{"model", "seed", "steps"}, sampler.Input.OrderedRequired)
	assert.Equal(t, []string{"noise"}, sampler.Input.OrderedOptional)
	assert.Len(t, sampler.Input.Required, 3)
}
