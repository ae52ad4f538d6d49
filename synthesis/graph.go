package synthesis

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

// GraphInputs are the per-run values of the generation graph that do not
// come from the request.
type GraphInputs struct {
	// Image is the name of the depth image as known to the server.
	Image      string
	Checkpoint string
	ControlNet string
	FilePrefix string
	Seed       uint64
}

// BuildPrompt returns the ControlNet-guided text-to-image graph for one
// iteration of req:
//
//	LoadImage -> ControlNetApplyAdvanced <- ControlNetLoader
//	CheckpointLoaderSimple -> CLIPTextEncode (positive, negative)
//	EmptyLatentImage -> KSampler -> VAEDecode -> SaveImage
func BuildPrompt(req generation.Request, in GraphInputs) (*graphapi.Prompt, error) {
	b := graphapi.NewBuilder()

	image := b.Add("LoadImage", map[string]any{
		"image": in.Image,
	})
	checkpoint := b.Add("CheckpointLoaderSimple", map[string]any{
		"ckpt_name": in.Checkpoint,
	})
	controlnet := b.Add("ControlNetLoader", map[string]any{
		"control_net_name": in.ControlNet,
	})
	positive := b.Add("CLIPTextEncode", map[string]any{
		"text": req.PositivePrompt(),
		"clip": checkpoint.Out(1),
	})
	negative := b.Add("CLIPTextEncode", map[string]any{
		"text": req.NegativePrompt(),
		"clip": checkpoint.Out(1),
	})
	dims := req.Dimensions()
	latent := b.Add("EmptyLatentImage", map[string]any{
		"width":      dims.Width,
		"height":     dims.Height,
		"batch_size": 1,
	})
	applied := b.Add("ControlNetApplyAdvanced", map[string]any{
		"strength":      1.0,
		"start_percent": 0.0,
		"end_percent":   1.0,
		"positive":      positive.Out(0),
		"negative":      negative.Out(0),
		"control_net":   controlnet.Out(0),
		"image":         image.Out(0),
	})
	sampled := b.Add("KSampler", map[string]any{
		"seed":         in.Seed,
		"steps":        req.Steps(),
		"cfg":          req.CFG(),
		"sampler_name": req.Sampler(),
		"scheduler":    req.Scheduler(),
		"denoise":      req.Denoise(),
		"model":        checkpoint.Out(0),
		"positive":     applied.Out(0),
		"negative":     applied.Out(1),
		"latent_image": latent.Out(0),
	})
	decoded := b.Add("VAEDecode", map[string]any{
		"samples": sampled.Out(0),
		"vae":     checkpoint.Out(2),
	})
	b.Add("SaveImage", map[string]any{
		"filename_prefix": in.FilePrefix,
		"images":          decoded.Out(0),
	})

	return b.Prompt("")
}

// RandomSeed returns a seed in [1, 2^64).
func RandomSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 42
	}
	seed := binary.LittleEndian.Uint64(buf[:])
	if seed == 0 {
		seed = 1
	}
	return seed
}
