// Package resources locates the bundled model directories under a
// resources root.
package resources

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvResourcesDir = "TSUKI_RESOURCES_DIR"

	TTSModelDir = "ai_models/supertonic"
	LLMModelDir = "ai_models/Qwen3-0.6B"
)

var ErrMissing = errors.New("resource directory not found")

// Paths holds resolved model base paths. An empty field was not resolved.
type Paths struct {
	Root string
	TTS  string
	LLM  string
}

// Resolve checks the model directories under root. Resolution stops at the
// first missing directory; the returned Paths keeps what was found before
// it.
func Resolve(root string) (Paths, error) {
	p := Paths{Root: root}
	if strings.TrimSpace(root) == "" {
		return p, fmt.Errorf("%w: resources root not set", ErrMissing)
	}
	tts, err := existingDir(root, TTSModelDir)
	if err != nil {
		return p, err
	}
	p.TTS = tts
	llm, err := existingDir(root, LLMModelDir)
	if err != nil {
		return p, err
	}
	p.LLM = llm
	return p, nil
}

func existingDir(root, rel string) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))
	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMissing, path, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrMissing, path)
	}
	return path, nil
}

// DefaultRoot picks the resources root: the environment override, then a
// resources directory next to the executable, then ./resources.
func DefaultRoot() string {
	if v := strings.TrimSpace(os.Getenv(EnvResourcesDir)); v != "" {
		return v
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Join(filepath.Dir(exe), "resources")
		if st, err := os.Stat(dir); err == nil && st.IsDir() {
			return dir
		}
	}
	return "resources"
}
