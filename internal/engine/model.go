package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// alignmentPreset pairs a model identifier with the timestamp-refinement
// preset the engine should use for it.
type alignmentPreset struct {
	modelID string
	preset  string
}

// Ordered most-specific first so substring matching on a model path cannot
// pick "large.v3" for a large-v3-turbo file.
var alignmentPresets = []alignmentPreset{
	{"large-v3-turbo", "large.v3.turbo"},
	{"large-v3", "large.v3"},
	{"large-v2", "large.v2"},
	{"large-v1", "large.v1"},
	{"medium.en", "medium.en"},
	{"medium", "medium"},
	{"small.en", "small.en"},
	{"small", "small"},
	{"base.en", "base.en"},
	{"base", "base"},
	{"tiny.en", "tiny.en"},
	{"tiny", "tiny"},
}

// defaultAlignmentPreset is used when neither the model identifier nor the
// resolved model path matches a known model family.
const defaultAlignmentPreset = "base"

// resolveAlignmentPreset picks the timestamp alignment preset for a model:
// exact identifier lookup first, then substring match on the resolved model
// path, then the fixed default.
func resolveAlignmentPreset(modelID, modelPath string) string {
	for _, ap := range alignmentPresets {
		if modelID == ap.modelID {
			return ap.preset
		}
	}

	base := filepath.Base(modelPath)
	for _, ap := range alignmentPresets {
		if strings.Contains(base, ap.modelID) {
			return ap.preset
		}
	}

	return defaultAlignmentPreset
}

// resolveModelPath maps a model selector to a model file. An explicit path
// is used as-is; a bare identifier resolves to the conventionally-named
// file in the models directory.
func resolveModelPath(modelsDir, model string) (string, error) {
	path := model
	if !strings.ContainsRune(model, os.PathSeparator) && !strings.HasSuffix(model, ".bin") {
		path = filepath.Join(modelsDir, fmt.Sprintf("ggml-%s.bin", model))
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("model file not found: %w", err)
	}

	return path, nil
}

// threadCount clamps the configured thread maximum to [1, NumCPU-1] so one
// core stays free for the command loop.
func threadCount(configuredMax int) int {
	limit := runtime.NumCPU() - 1
	if limit < 1 {
		limit = 1
	}

	if configuredMax < 1 {
		return 1
	}

	if configuredMax > limit {
		return limit
	}

	return configuredMax
}
