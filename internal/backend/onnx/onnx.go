// Package onnx runs causal language models exported to ONNX through ONNX
// Runtime. The graph must take input_ids and produce logits shaped
// [batch, seq, vocab]; attention_mask and position_ids are fed when the
// graph declares them.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/tsuki-kuma/tsuki/internal/backend"
)

const (
	inputIDs      = "input_ids"
	attentionMask = "attention_mask"
	positionIDs   = "position_ids"
	logitsOutput  = "logits"
)

// Candidate model file locations inside a model directory.
var ModelFiles = []string{"model.onnx", filepath.Join("onnx", "model.onnx")}

var ErrNoModel = errors.New("no onnx model found")

// Config describes how to open a model.
type Config struct {
	// ModelPath is either a .onnx file or a directory containing one.
	ModelPath string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// runtime's default lookup.
	LibraryPath   string
	VocabSize     int
	ContextLength int
	Threads       int
}

// Model is a loaded ONNX session.
type Model struct {
	path    string
	vocab   int
	context int
	inputs  []string
	session *ort.DynamicAdvancedSession
}

var _ backend.Model = (*Model)(nil)

var envMu sync.Mutex

func ensureEnvironment(lib string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if lib != "" {
		ort.SetSharedLibraryPath(lib)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	return nil
}

// FindModel resolves a .onnx file from a file or directory path.
func FindModel(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, name := range ModelFiles {
		p := filepath.Join(path, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoModel, path)
}

func Open(cfg Config) (*Model, error) {
	if cfg.VocabSize <= 0 {
		return nil, fmt.Errorf("onnx: vocab size must be positive")
	}
	path, err := FindModel(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if err := ensureEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	ins, outs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", path, err)
	}
	inputs := []string{}
	for _, in := range ins {
		switch in.Name {
		case inputIDs, attentionMask, positionIDs:
			inputs = append(inputs, in.Name)
		default:
			return nil, fmt.Errorf("onnx: unsupported graph input %q (models with external kv-cache inputs are not supported)", in.Name)
		}
	}
	if !slices.Contains(inputs, inputIDs) {
		return nil, fmt.Errorf("onnx: graph has no %s input", inputIDs)
	}
	if !slices.ContainsFunc(outs, func(o ort.InputOutputInfo) bool { return o.Name == logitsOutput }) {
		return nil, fmt.Errorf("onnx: graph has no %s output", logitsOutput)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Threads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.Threads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path, inputs, []string{logitsOutput}, opts)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Model{
		path:    path,
		vocab:   cfg.VocabSize,
		context: cfg.ContextLength,
		inputs:  inputs,
		session: session,
	}, nil
}

// Forward runs the full sequence and returns the logits of its last
// position.
func (m *Model) Forward(tokens []int) ([]float32, error) {
	n := len(tokens)
	if n == 0 {
		return nil, backend.ErrEmptyInput
	}
	if m.context > 0 && n > m.context {
		return nil, fmt.Errorf("onnx: sequence length %d exceeds context %d", n, m.context)
	}
	shape := ort.NewShape(1, int64(n))

	values := make([]ort.Value, 0, len(m.inputs))
	defer func() {
		for _, v := range values {
			_ = v.Destroy()
		}
	}()
	for _, name := range m.inputs {
		data := make([]int64, n)
		for i := range data {
			switch name {
			case inputIDs:
				data[i] = int64(tokens[i])
			case attentionMask:
				data[i] = 1
			case positionIDs:
				data[i] = int64(i)
			}
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("onnx: %s tensor: %w", name, err)
		}
		values = append(values, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(n), int64(m.vocab)))
	if err != nil {
		return nil, fmt.Errorf("onnx: logits tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run(values, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}
	data := out.GetData()
	last := data[(n-1)*m.vocab : n*m.vocab]
	return slices.Clone(last), nil
}

func (m *Model) VocabSize() int     { return m.vocab }
func (m *Model) ContextLength() int { return m.context }
func (m *Model) Path() string       { return m.path }

func (m *Model) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
