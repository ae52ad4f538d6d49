package synthesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/client"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

// ErrNoSettings is returned when an image carries no generation graph.
var ErrNoSettings = errors.New("image has no generation settings")

// Settings are the values a generated image was made with, recovered from
// the graph ComfyUI embeds in its output.
type Settings struct {
	Image          string
	Checkpoint     string
	ControlNet     string
	PositivePrompt string
	NegativePrompt string
	Width, Height  int
	Seed           uint64
	Steps          int
	CFG            float64
	Sampler        string
	Scheduler      string
	Denoise        float64
}

// ReadSettings reads the settings of a PNG written by SaveImage.
func ReadSettings(r io.Reader) (*Settings, error) {
	chunks, err := client.ReadPngText(r)
	if err != nil {
		return nil, err
	}
	raw, ok := chunks["prompt"]
	if !ok {
		return nil, ErrNoSettings
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	nodes := map[string]graphapi.PromptNode{}
	if err := dec.Decode(&nodes); err != nil {
		return nil, fmt.Errorf("decoding embedded prompt: %w", err)
	}
	return settingsFromNodes(nodes)
}

func settingsFromNodes(nodes map[string]graphapi.PromptNode) (*Settings, error) {
	var sampler *graphapi.PromptNode
	for id := range nodes {
		if nodes[id].ClassType == "KSampler" {
			n := nodes[id]
			sampler = &n
			break
		}
	}
	if sampler == nil {
		return nil, fmt.Errorf("%w: no KSampler node", ErrNoSettings)
	}

	g := graphReader{nodes: nodes}
	s := &Settings{
		Seed:      g.uint(sampler.Inputs["seed"]),
		Steps:     int(g.uint(sampler.Inputs["steps"])),
		CFG:       g.float(sampler.Inputs["cfg"]),
		Sampler:   g.str(sampler.Inputs["sampler_name"]),
		Scheduler: g.str(sampler.Inputs["scheduler"]),
		Denoise:   g.float(sampler.Inputs["denoise"]),
	}

	if model, ok := g.follow(sampler.Inputs["model"]); ok && model.ClassType == "CheckpointLoaderSimple" {
		s.Checkpoint = g.str(model.Inputs["ckpt_name"])
	}
	if latent, ok := g.follow(sampler.Inputs["latent_image"]); ok {
		s.Width = int(g.uint(latent.Inputs["width"]))
		s.Height = int(g.uint(latent.Inputs["height"]))
	}

	positive, _ := g.follow(sampler.Inputs["positive"])
	negative, _ := g.follow(sampler.Inputs["negative"])
	if positive.ClassType == "ControlNetApplyAdvanced" {
		apply := positive
		if cn, ok := g.follow(apply.Inputs["control_net"]); ok {
			s.ControlNet = g.str(cn.Inputs["control_net_name"])
		}
		if img, ok := g.follow(apply.Inputs["image"]); ok {
			s.Image = g.str(img.Inputs["image"])
		}
		positive, _ = g.follow(apply.Inputs["positive"])
		negative, _ = g.follow(apply.Inputs["negative"])
	}
	s.PositivePrompt = g.str(positive.Inputs["text"])
	s.NegativePrompt = g.str(negative.Inputs["text"])
	return s, nil
}

// graphReader reads values out of a decoded prompt. Missing or mistyped
// values read as zero.
type graphReader struct {
	nodes map[string]graphapi.PromptNode
}

// follow returns the node a ["id", slot] link points at.
func (g graphReader) follow(v any) (graphapi.PromptNode, bool) {
	link, ok := v.([]any)
	if !ok || len(link) != 2 {
		return graphapi.PromptNode{}, false
	}
	id, ok := link[0].(string)
	if !ok {
		return graphapi.PromptNode{}, false
	}
	n, ok := g.nodes[id]
	return n, ok
}

func (graphReader) str(v any) string {
	s, _ := v.(string)
	return s
}

func (graphReader) uint(v any) uint64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	u, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0
	}
	return u
}

func (graphReader) float(v any) float64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	f, _ := n.Float64()
	return f
}
