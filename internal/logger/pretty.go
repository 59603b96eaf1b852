package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[90m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// summaries render the records tsuki emits most often as one compact
// phrase. Attributes a summary does not consume are printed after it.
var summaries = map[string]func(*fieldSet) string{
	"model loaded":        summarizeLoad,
	"generation finished": summarizeGeneration,
}

// PrettyHandler writes one colored line per record for a terminal.
type PrettyHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	attrs  []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyHandler{level: level, w: w, mu: &sync.Mutex{}}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	fs := &fieldSet{attrs: make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())}
	fs.attrs = append(fs.attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		fs.attrs = append(fs.attrs, qualify(h.prefix, a))
		return true
	})

	var b strings.Builder
	b.WriteString(ansiDim)
	b.WriteString(r.Time.Format(time.TimeOnly))
	b.WriteString(ansiReset)
	b.WriteByte(' ')
	b.WriteString(levelColor(r.Level))
	b.WriteString(ansiBold)
	fmt.Fprintf(&b, "%-5s", r.Level.String())
	b.WriteString(ansiReset)
	b.WriteByte(' ')
	b.WriteString(r.Message)

	if sum, ok := summaries[r.Message]; ok && h.prefix == "" {
		if s := sum(fs); s != "" {
			b.WriteString("  ")
			b.WriteString(ansiGreen)
			b.WriteString(s)
			b.WriteString(ansiReset)
		}
	}
	if len(fs.attrs) > 0 {
		b.WriteByte(' ')
		b.WriteString(ansiCyan)
		for i, a := range fs.attrs {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeAttr(&b, "", a)
		}
		b.WriteString(ansiReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, qualify(h.prefix, a))
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func qualify(prefix string, a slog.Attr) slog.Attr {
	if prefix == "" {
		return a
	}
	a.Key = prefix + a.Key
	return a
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiDim
	}
}

// writeAttr flattens groups into dotted keys.
func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for i, ga := range v.Group() {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(formatValue(v))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().Round(time.Microsecond).String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'g', 4, 64)
	default:
		s = fmt.Sprint(v.Any())
	}
	if needsQuoting(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " \t\n\r\"=")
}

// fieldSet is the attribute list of one record. take removes a key so the
// remainder can be printed verbatim.
type fieldSet struct {
	attrs []slog.Attr
}

func (f *fieldSet) take(key string) (slog.Value, bool) {
	for i, a := range f.attrs {
		if a.Key == key {
			f.attrs = append(f.attrs[:i], f.attrs[i+1:]...)
			return a.Value.Resolve(), true
		}
	}
	return slog.Value{}, false
}

// model loaded: "qwen3 [onnx] vocab 151936 ctx 4096"
func summarizeLoad(f *fieldSet) string {
	var parts []string
	if v, ok := f.take("model"); ok {
		parts = append(parts, v.String())
	}
	if v, ok := f.take("backend"); ok {
		parts = append(parts, "["+v.String()+"]")
	}
	if v, ok := f.take("vocab"); ok {
		parts = append(parts, "vocab "+v.String())
	}
	if v, ok := f.take("context"); ok {
		parts = append(parts, "ctx "+v.String())
	}
	return strings.Join(parts, " ")
}

// generation finished: "qwen3 · 12+5 tok · 31.2 tok/s · eos · seed 42 · cache 1/2"
func summarizeGeneration(f *fieldSet) string {
	var parts []string
	if v, ok := f.take("model"); ok {
		parts = append(parts, v.String())
	}
	if v, ok := f.take("tokens"); ok {
		tok := v.String()
		if p, ok := f.take("prompt_tokens"); ok {
			tok = p.String() + "+" + tok
		}
		parts = append(parts, tok+" tok")
	}
	if v, ok := f.take("tps"); ok {
		tps := v.String()
		if v.Kind() == slog.KindFloat64 {
			tps = strconv.FormatFloat(v.Float64(), 'f', 1, 64)
		}
		parts = append(parts, tps+" tok/s")
	}
	if v, ok := f.take("finish"); ok {
		parts = append(parts, v.String())
	}
	if v, ok := f.take("seed"); ok {
		parts = append(parts, "seed "+v.String())
	}
	hits, okHits := f.take("cache_hits")
	misses, okMisses := f.take("cache_misses")
	if okHits && okMisses {
		parts = append(parts, "cache "+hits.String()+"/"+misses.String())
	}
	return strings.Join(parts, " · ")
}
