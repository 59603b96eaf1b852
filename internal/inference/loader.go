package inference

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/tsuki-kuma/tsuki/internal/backend"
	"github.com/tsuki-kuma/tsuki/internal/backend/onnx"
	"github.com/tsuki-kuma/tsuki/internal/logger"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
	"github.com/tsuki-kuma/tsuki/internal/toy"
)

const (
	BackendAuto = "auto"
	BackendONNX = "onnx"
	BackendToy  = "toy"

	ModelConfigFile      = "config.json"
	GenerationConfigFile = "generation_config.json"

	toyHidden = 64
)

// Loader opens a model directory laid out like a HuggingFace snapshot:
// tokenizer.json, tokenizer_config.json, config.json,
// generation_config.json and an ONNX export.
type Loader struct {
	Backend         string
	ONNXLibrary     string
	Threads         int
	MaxContext      int
	PrefixCacheSize int
	Logger          logger.Logger
}

type modelConfig struct {
	VocabSize             int `json:"vocab_size"`
	MaxPositionEmbeddings int `json:"max_position_embeddings"`
}

func readModelConfig(dir string) (modelConfig, error) {
	var cfg modelConfig
	b, err := os.ReadFile(filepath.Join(dir, ModelConfigFile))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", ModelConfigFile, err)
	}
	return cfg, nil
}

func (l Loader) log() logger.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logger.Default()
}

// Load builds an Engine from dir. Failures are ErrUninitializedResource.
func (l Loader) Load(dir string) (*Engine, error) {
	fail := func(op string, err error) (*Engine, error) {
		return nil, newError(ErrUninitializedResource, op, err)
	}
	if strings.TrimSpace(dir) == "" {
		return fail("load", errors.New("model path is required"))
	}
	if st, err := os.Stat(dir); err != nil {
		return fail("load", err)
	} else if !st.IsDir() {
		return fail("load", fmt.Errorf("%s is not a directory", dir))
	}

	tok, err := tokenizer.LoadHFTokenizerDir(dir)
	if err != nil {
		return fail("load tokenizer", err)
	}
	mcfg, err := readModelConfig(dir)
	if err != nil {
		return fail("load model config", err)
	}
	defaults := LoadGenDefaults(filepath.Join(dir, GenerationConfigFile)).config()

	ctxLen := mcfg.MaxPositionEmbeddings
	if l.MaxContext > 0 && (ctxLen == 0 || l.MaxContext < ctxLen) {
		ctxLen = l.MaxContext
	}
	vocab := max(mcfg.VocabSize, tok.VocabSize())

	m, kind, err := l.openBackend(dir, vocab, ctxLen)
	if err != nil {
		return fail("load backend", err)
	}
	if m.VocabSize() < tok.VocabSize() {
		_ = backend.Close(m)
		return fail("load backend", fmt.Errorf("model vocabulary %d smaller than tokenizer vocabulary %d", m.VocabSize(), tok.VocabSize()))
	}
	tok.PadVocab(m.VocabSize())

	m = backend.NewPrefixCache(backend.Serialized(m), l.PrefixCacheSize, 0)
	stop := BuildStopTokens(tok, tok.EOSID())

	name := filepath.Base(filepath.Clean(dir))
	l.log().Info("model loaded",
		"model", name,
		"backend", kind,
		"vocab", m.VocabSize(),
		"context", ctxLen,
		"stop_tokens", stop,
	)
	sp := tok.Specials()
	l.log().Debug("tokenizer specials",
		"model", name,
		"bos", sp.BOS,
		"eos", sp.EOS,
		"pad", sp.PAD,
		"unk", sp.UNK,
		"add_bos", sp.AddBOS,
		"add_eos", sp.AddEOS,
		"stop", stopTokenNames(tok, stop),
	)
	return &Engine{
		Name:       name,
		Model:      m,
		Tokenizer:  tok,
		StopTokens: stop,
		Defaults:   defaults,
		Logger:     l.Logger,
	}, nil
}

func stopTokenNames(tok *tokenizer.HFTokenizer, ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, tok.TokenString(id))
	}
	return names
}

func (l Loader) openBackend(dir string, vocab, ctxLen int) (backend.Model, string, error) {
	kind := strings.ToLower(strings.TrimSpace(l.Backend))
	if kind == "" {
		kind = BackendAuto
	}
	// auto only ever means onnx. The toy model has random weights and must
	// be asked for by name.
	if kind == BackendAuto {
		if _, err := onnx.FindModel(dir); err != nil {
			return nil, kind, fmt.Errorf("%s not found in %s (use --backend toy for the demo model): %w",
				onnx.ModelFiles[0], dir, err)
		}
		kind = BackendONNX
	}
	switch kind {
	case BackendONNX:
		m, err := onnx.Open(onnx.Config{
			ModelPath:     dir,
			LibraryPath:   l.ONNXLibrary,
			VocabSize:     vocab,
			ContextLength: ctxLen,
			Threads:       l.Threads,
		})
		if err != nil {
			return nil, kind, err
		}
		return m, kind, nil
	case BackendToy:
		m := toy.NewToyLM(vocab, toyHidden, 0)
		m.Context = ctxLen
		return m, kind, nil
	}
	return nil, kind, fmt.Errorf("unknown backend %q", l.Backend)
}
