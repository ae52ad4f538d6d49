package synthesis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/config"
)

// Model folder kinds as named by ComfyUI.
const (
	KindCheckpoints = "checkpoints"
	KindControlNet  = "controlnet"
)

// ExtraModelPathsFile is ComfyUI's optional list of additional model folders.
const ExtraModelPathsFile = "extra_model_paths.yaml"

// ModelLocator resolves model names against ComfyUI's model folders.
type ModelLocator struct {
	paths map[string][]string
}

// NewModelLocator searches <comfyDir>/models/<kind> first, then any folders
// listed in extraPaths (an extra_model_paths.yaml file; empty to skip).
func NewModelLocator(comfyDir, extraPaths string) (*ModelLocator, error) {
	l := &ModelLocator{paths: make(map[string][]string)}
	for _, kind := range []string{KindCheckpoints, KindControlNet} {
		l.paths[kind] = []string{filepath.Join(comfyDir, "models", kind)}
	}
	if extraPaths == "" {
		return l, nil
	}

	data, err := os.ReadFile(extraPaths)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", extraPaths, err)
	}
	if err := l.addExtraPaths(data, filepath.Dir(extraPaths)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", extraPaths, err)
	}
	return l, nil
}

// FindExtraModelPaths looks for extra_model_paths.yaml in comfyDir, then in
// the working directory and its parents.
func FindExtraModelPaths(comfyDir string) (string, bool) {
	if comfyDir != "" {
		candidate := filepath.Join(comfyDir, ExtraModelPathsFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return config.FindPath(ExtraModelPathsFile, "")
}

// addExtraPaths reads sections shaped like
//
//	a111:
//	  base_path: /opt/stable-diffusion-webui
//	  checkpoints: models/Stable-diffusion
//	  controlnet: |
//	    models/ControlNet
//	    extensions/sd-webui-controlnet/models
//
// Relative folders are joined to base_path, and base_path to dir.
func (l *ModelLocator) addExtraPaths(data []byte, dir string) error {
	var sections map[string]map[string]any
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return err
	}

	for _, section := range sections {
		base := dir
		if bp, ok := section["base_path"].(string); ok && bp != "" {
			bp = expandHome(bp)
			if !filepath.IsAbs(bp) {
				bp = filepath.Join(dir, bp)
			}
			base = bp
		}
		for kind, v := range section {
			if kind == "base_path" || kind == "is_default" {
				continue
			}
			folders, ok := v.(string)
			if !ok {
				continue
			}
			for _, folder := range strings.Split(folders, "\n") {
				folder = strings.TrimSpace(folder)
				if folder == "" {
					continue
				}
				folder = expandHome(folder)
				if !filepath.IsAbs(folder) {
					folder = filepath.Join(base, folder)
				}
				l.paths[kind] = append(l.paths[kind], folder)
			}
		}
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

// Paths lists the folders searched for kind, in search order.
func (l *ModelLocator) Paths(kind string) []string {
	return append([]string(nil), l.paths[kind]...)
}

// Find returns the full path of the model called name. Names may contain
// sub folders written with either slash.
func (l *ModelLocator) Find(kind, name string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	for _, folder := range l.paths[kind] {
		candidate := filepath.Join(folder, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s %q", ErrModelNotFound, kind, name)
}
