package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/client"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

// fakeRunner records prompts and replays a progress/data sequence for each.
type fakeRunner struct {
	uploads []string
	prompts []*graphapi.Prompt
	failOn  int // 1-based prompt number that fails; 0 never
	// objectInfo is the /object_info response; empty means the server
	// cannot list nodes.
	objectInfo string
}

func (f *fakeRunner) GetObjectInfo(_ context.Context, nodeClass string) (*graphapi.NodeObject, error) {
	if f.objectInfo == "" {
		return nil, errors.New("object_info unavailable")
	}
	objs := graphapi.NodeObjects{}
	if err := json.Unmarshal([]byte(f.objectInfo), &objs.Objects); err != nil {
		return nil, err
	}
	if obj := objs.GetNodeObjectByName(nodeClass); obj != nil {
		return obj, nil
	}
	return nil, fmt.Errorf("unknown node %s", nodeClass)
}

func (f *fakeRunner) UploadFileFromPath(_ context.Context, path string, _ bool, _ client.ImageType, _ string) (string, error) {
	f.uploads = append(f.uploads, path)
	return filepath.Base(path), nil
}

func (f *fakeRunner) QueuePromptAndProcess(_ context.Context, prompt *graphapi.Prompt, h *client.MessageHandlers) error {
	f.prompts = append(f.prompts, prompt)
	n := len(f.prompts)
	if n == f.failOn {
		return fmt.Errorf("%w: node 1 (LoadImage): FileNotFoundError - missing", client.ErrExecution)
	}
	if h.OnExecuting != nil {
		h.OnExecuting(&client.PromptMessageExecuting{NodeID: "8", Title: "KSampler"})
	}
	if h.OnProgress != nil {
		h.OnProgress(&client.PromptMessageProgress{Value: 1, Max: 2})
		h.OnProgress(&client.PromptMessageProgress{Value: 2, Max: 2})
	}
	if h.OnData != nil {
		h.OnData(&client.PromptMessageData{NodeID: "10", Data: map[string][]client.DataOutput{
			"images": {{Filename: fmt.Sprintf("ComfyUI_%05d_.png", n), Type: "output"}},
		}})
	}
	if h.OnComplete != nil {
		h.OnComplete()
	}
	return nil
}

func (f *fakeRunner) GetImage(_ context.Context, out client.DataOutput) ([]byte, error) {
	return []byte("png:" + out.Filename), nil
}

func request(t *testing.T, mutate func(*generation.Params)) generation.Request {
	t.Helper()
	p := generation.DefaultParams()
	p.Image = "depth.png"
	p.PositivePrompt = "a red chair"
	p.NegativePrompt = "blurry"
	p.Iterations = 2
	if mutate != nil {
		mutate(&p)
	}
	req, err := generation.New(p)
	require.NoError(t, err)
	return req
}

func sequentialSeeds() func() uint64 {
	var n uint64
	return func() uint64 {
		n++
		return n
	}
}

// comfyDir lays out a minimal ComfyUI installation.
func comfyDir(t *testing.T, withModels bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.py"), nil, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "input"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "input", "depth.png"), nil, 0o644))
	if withModels {
		writeFile(t, filepath.Join(dir, "models", "checkpoints", "sd.safetensors"))
		writeFile(t, filepath.Join(dir, "models", "controlnet", "cn", "depth.safetensors"))
	}
	return dir
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestBuildPrompt(t *testing.T) {
	req := request(t, func(p *generation.Params) {
		p.Dimensions = generation.Dimensions{Width: 768, Height: 512}
		p.Steps = 20
		p.CFG = 6.5
		p.Denoise = 0.8
	})
	prompt, err := BuildPrompt(req, GraphInputs{
		Image: "depth.png", Checkpoint: "sd.safetensors", ControlNet: "cn.safetensors",
		FilePrefix: "run", Seed: 99,
	})
	require.NoError(t, err)
	require.Len(t, prompt.Nodes, 10)

	byClass := map[string][]graphapi.PromptNode{}
	for _, n := range prompt.Nodes {
		byClass[n.ClassType] = append(byClass[n.ClassType], n)
	}
	assert.Len(t, byClass["CLIPTextEncode"], 2)

	sampler := byClass["KSampler"][0]
	assert.Equal(t, uint64(99), sampler.Inputs["seed"])
	assert.Equal(t, 20, sampler.Inputs["steps"])
	assert.Equal(t, 6.5, sampler.Inputs["cfg"])
	assert.Equal(t, 0.8, sampler.Inputs["denoise"])
	assert.Equal(t, generation.DefaultSampler, sampler.Inputs["sampler_name"])
	assert.Equal(t, generation.DefaultScheduler, sampler.Inputs["scheduler"])

	// negative conditioning comes from output 1 of the ControlNet node
	neg := sampler.Inputs["negative"].(graphapi.Link)
	assert.Equal(t, "ControlNetApplyAdvanced", prompt.Nodes[neg[0].(string)].ClassType)
	assert.Equal(t, 1, neg[1])

	latent := byClass["EmptyLatentImage"][0]
	assert.Equal(t, 768, latent.Inputs["width"])
	assert.Equal(t, 512, latent.Inputs["height"])
	assert.Equal(t, 1, latent.Inputs["batch_size"])

	assert.Equal(t, "run", byClass["SaveImage"][0].Inputs["filename_prefix"])
	assert.Equal(t, "cn.safetensors", byClass["ControlNetLoader"][0].Inputs["control_net_name"])
}

func TestGenerateUploadsLocalImageAndSavesOutputs(t *testing.T) {
	work := t.TempDir()
	local := filepath.Join(work, "depth.png")
	require.NoError(t, os.WriteFile(local, []byte("depth"), 0o644))
	out := filepath.Join(work, "out")

	runner := &fakeRunner{}
	var progress bytes.Buffer
	svc, err := NewComfyService(runner, Options{
		Checkpoint: "sd.safetensors", ControlNet: "cn.safetensors",
		OutputDir: out, ShowProgress: true, Progress: &progress, Seed: sequentialSeeds(),
	}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Generate(context.Background(), request(t, func(p *generation.Params) { p.Image = local })))

	assert.Equal(t, []string{local}, runner.uploads)
	require.Len(t, runner.prompts, 2)
	for i, p := range runner.prompts {
		for _, n := range p.Nodes {
			switch n.ClassType {
			case "KSampler":
				assert.Equal(t, uint64(i+1), n.Inputs["seed"])
			case "LoadImage":
				assert.Equal(t, "depth.png", n.Inputs["image"])
			case "SaveImage":
				assert.Equal(t, "ComfyUI", n.Inputs["filename_prefix"])
			}
		}
	}

	data, err := os.ReadFile(filepath.Join(out, "ComfyUI_00002_.png"))
	require.NoError(t, err)
	assert.Equal(t, "png:ComfyUI_00002_.png", string(data))
	assert.Contains(t, progress.String(), "depth.png [2/2]")
}

func TestGenerateStopsAtFirstFailedIteration(t *testing.T) {
	runner := &fakeRunner{failOn: 1}
	svc, err := NewComfyService(runner, Options{}, nil)
	require.NoError(t, err)

	err = svc.Generate(context.Background(), request(t, nil))
	require.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, client.ErrExecution)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 1, serr.Iteration)
	assert.Equal(t, "depth.png", serr.JobImage)
	assert.Len(t, runner.prompts, 1)
}

func TestGenerateChecksComfyInputFolder(t *testing.T) {
	dir := comfyDir(t, true)
	runner := &fakeRunner{}
	svc, err := NewComfyService(runner, Options{
		ComfyDirectory: dir, Checkpoint: "sd.safetensors", ControlNet: "cn/depth.safetensors",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Generate(context.Background(), request(t, func(p *generation.Params) { p.Iterations = 1 })))
	assert.Empty(t, runner.uploads, "images already in the input folder are not uploaded")

	err = svc.Generate(context.Background(), request(t, func(p *generation.Params) { p.Image = "missing.png" }))
	assert.ErrorIs(t, err, ErrInputNotFound)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, serr.Iteration)
}

func TestGenerateChecksModels(t *testing.T) {
	dir := comfyDir(t, true)
	runner := &fakeRunner{}
	svc, err := NewComfyService(runner, Options{
		ComfyDirectory: dir, Checkpoint: "absent.safetensors", ControlNet: "cn/depth.safetensors",
	}, nil)
	require.NoError(t, err)

	err = svc.Generate(context.Background(), request(t, nil))
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Empty(t, runner.prompts)
}

func TestNewComfyServiceRequiresNodesPy(t *testing.T) {
	_, err := NewComfyService(&fakeRunner{}, Options{ComfyDirectory: t.TempDir()}, nil)
	assert.True(t, errors.Is(err, ErrComfyNotFound))
}

func TestModelLocatorExtraPaths(t *testing.T) {
	comfy := comfyDir(t, false)
	webui := t.TempDir()
	writeFile(t, filepath.Join(webui, "models", "Stable-diffusion", "xl.safetensors"))
	writeFile(t, filepath.Join(webui, "ext", "cn", "depth.safetensors"))

	yamlPath := filepath.Join(comfy, ExtraModelPathsFile)
	require.NoError(t, os.WriteFile(yamlPath, []byte(fmt.Sprintf(`
a111:
    base_path: %s
    checkpoints: models/Stable-diffusion
    controlnet: |
        models/ControlNet
        ext/cn
    is_default: false
`, webui)), 0o644))

	found, ok := FindExtraModelPaths(comfy)
	require.True(t, ok)
	assert.Equal(t, yamlPath, found)

	l, err := NewModelLocator(comfy, found)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(comfy, "models", "controlnet"),
		filepath.Join(webui, "models", "ControlNet"),
		filepath.Join(webui, "ext", "cn"),
	}, l.Paths(KindControlNet))

	path, err := l.Find(KindCheckpoints, "xl.safetensors")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(webui, "models", "Stable-diffusion", "xl.safetensors"), path)

	_, err = l.Find(KindControlNet, `sub\depth.safetensors`)
	assert.ErrorIs(t, err, ErrModelNotFound)
	_, err = l.Find(KindControlNet, "depth.safetensors")
	assert.NoError(t, err)
}

const serverModels = `{
	"CheckpointLoaderSimple": {"input": {"required": {"ckpt_name": [["sd.safetensors", "xl.safetensors"], {}]}}, "name": "CheckpointLoaderSimple"},
	"ControlNetLoader": {"input": {"required": {"control_net_name": ["COMBO", {"options": ["cn\\depth.safetensors"]}]}}, "name": "ControlNetLoader"}
}`

func TestGenerateChecksModelsOnServer(t *testing.T) {
	runner := &fakeRunner{objectInfo: serverModels}
	svc, err := NewComfyService(runner, Options{Checkpoint: "xl.safetensors", ControlNet: "cn/depth.safetensors"}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Generate(context.Background(), request(t, func(p *generation.Params) { p.Iterations = 1 })))

	svc, err = NewComfyService(runner, Options{Checkpoint: "missing.safetensors", ControlNet: "cn/depth.safetensors"}, nil)
	require.NoError(t, err)
	err = svc.Generate(context.Background(), request(t, nil))
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.Len(t, runner.prompts, 1)
}
