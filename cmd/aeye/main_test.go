package main

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/boxes"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/command"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/synthesis"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(append(args, "--log-file", filepath.Join(t.TempDir(), "aeye.log")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBoxesCommand(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	f, err := os.Create(filepath.Join(in, "cup.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(in, "cup.json"),
		[]byte(`{"canvasSize":{"x":8,"y":8},"space":{"screenSpace":[{"position":{"x":1,"y":1}},{"position":{"x":6,"y":5}}]}}`), 0o644))

	stdout, err := execute(t, "boxes", "--input", in, "--output", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 of 1 image(s) outlined")
	assert.FileExists(t, filepath.Join(out, "cup.png"))
}

func TestBoxesCommandWithoutImagesFails(t *testing.T) {
	_, err := execute(t, "boxes", "--input", filepath.Join(t.TempDir(), "none"), "--output", t.TempDir())
	assert.ErrorIs(t, err, boxes.ErrNoImages)
	var logged loggedError
	assert.ErrorAs(t, err, &logged)
}

func TestGenerateValidatesBeforeConnecting(t *testing.T) {
	_, err := execute(t, "generate", "--image", "depth.png")
	assert.ErrorIs(t, err, command.ErrParse)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "boxes", "--config", filepath.Join(t.TempDir(), "absent.config"))
	require.Error(t, err)
	configPath = ""
}

// writeComfyPNG writes a PNG carrying graph in a "prompt" tEXt chunk, the
// way SaveImage does.
func writeComfyPNG(t *testing.T, path, graph string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 2, 2))))

	data := append([]byte("prompt\x00"), graph...)
	var chunk bytes.Buffer
	require.NoError(t, binary.Write(&chunk, binary.BigEndian, uint32(len(data))))
	chunk.WriteString("tEXt")
	chunk.Write(data)
	require.NoError(t, binary.Write(&chunk, binary.BigEndian, crc32.ChecksumIEEE(append([]byte("tEXt"), data...))))

	const afterIHDR = 33
	raw := img.Bytes()
	out := append(append(append([]byte{}, raw[:afterIHDR]...), chunk.Bytes()...), raw[afterIHDR:]...)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func TestInspectCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ComfyUI_00001_.png")
	writeComfyPNG(t, path, `{
		"1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sd.safetensors"}},
		"2": {"class_type": "CLIPTextEncode", "inputs": {"text": "a red barn", "clip": ["1", 1]}},
		"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "", "clip": ["1", 1]}},
		"4": {"class_type": "EmptyLatentImage", "inputs": {"width": 768, "height": 512, "batch_size": 1}},
		"5": {"class_type": "KSampler", "inputs": {"seed": 123, "steps": 20, "cfg": 7, "sampler_name": "euler",
			"scheduler": "exponential", "denoise": 1, "model": ["1", 0], "positive": ["2", 0], "negative": ["3", 0],
			"latent_image": ["4", 0]}}
	}`)

	stdout, err := execute(t, "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "sd.safetensors")
	assert.Contains(t, stdout, "123")
	assert.Contains(t, stdout, `--prompt 'a red barn' --sampler euler --dimensions 768,512 --steps 20`)
}

func TestInspectCommandWithoutSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	require.NoError(t, f.Close())

	_, err = execute(t, "inspect", path)
	assert.ErrorIs(t, err, synthesis.ErrNoSettings)
}
