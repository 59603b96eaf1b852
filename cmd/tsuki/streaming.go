package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tsuki-kuma/tsuki/internal/reasoning"
	"github.com/tsuki-kuma/tsuki/internal/tokenizer"
)

type StreamMode string

const (
	StreamAuto    StreamMode = "auto"
	StreamInstant StreamMode = "instant"
	StreamQuiet   StreamMode = "quiet"
)

func parseStreamMode(s string, tty bool) (StreamMode, error) {
	switch StreamMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", StreamAuto:
		if tty {
			return StreamInstant, nil
		}
		return StreamQuiet, nil
	case StreamInstant:
		return StreamInstant, nil
	case StreamQuiet:
		return StreamQuiet, nil
	}
	return "", fmt.Errorf("unknown stream mode %q (want auto, instant or quiet)", s)
}

// StreamWriter prints generation deltas. In instant mode text is written
// as it arrives and rewrites are erased with backspaces; quiet mode prints
// only the final text.
type StreamWriter struct {
	mode      StreamMode
	out       *bufio.Writer
	raw       bool
	reasoning bool

	mu    sync.Mutex
	split reasoning.Splitter
	text  string
	shown string
}

// NewStreamWriter writes to w. With showReasoning false only the content
// outside <think> blocks is printed. raw escapes control characters.
func NewStreamWriter(w io.Writer, mode StreamMode, showReasoning, raw bool) *StreamWriter {
	return &StreamWriter{
		mode:      mode,
		out:       bufio.NewWriterSize(w, 4096),
		raw:       raw,
		reasoning: showReasoning,
	}
}

// Write takes one raw text delta from the generator.
func (w *StreamWriter) Write(d tokenizer.Delta) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.reasoning {
		d, _ = w.split.Push(d)
	}
	w.text = d.Apply(w.text)
	if w.mode == StreamInstant {
		w.show(w.text)
	}
}

// Flush prints whatever is left and returns the printed text.
func (w *StreamWriter) Flush() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.show(w.text)
	if w.shown != "" && !strings.HasSuffix(w.escape(w.shown), "\n") {
		_, _ = w.out.WriteString("\n")
	}
	_ = w.out.Flush()
	return w.shown
}

// show brings the printed text in line with target. Content printed
// without its reasoning starts at the first non-space character.
func (w *StreamWriter) show(target string) {
	if !w.reasoning {
		target = strings.TrimLeft(target, " \t\r\n")
	}
	d := tokenizer.Diff(w.shown, target)
	if d.Empty() {
		return
	}
	if d.Replace > 0 {
		gone := w.shown[len(w.shown)-d.Replace:]
		n := utf8.RuneCountInString(w.escape(gone))
		_, _ = w.out.WriteString(strings.Repeat("\b", n) + "\x1b[K")
	}
	_, _ = w.out.WriteString(w.escape(d.Text))
	_ = w.out.Flush()
	w.shown = target
}

func (w *StreamWriter) escape(s string) string {
	if !w.raw {
		return s
	}
	return escapeRawOutput(s)
}

func escapeRawOutput(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteString(escapeRawOutputRune(r))
	}
	return b.String()
}

func escapeRawOutputRune(r rune) string {
	switch r {
	case '\n':
		return `\n`
	case '\r':
		return `\r`
	case '\t':
		return `\t`
	case '\\':
		return `\\`
	default:
		if strconv.IsPrint(r) {
			return string(r)
		}
		return fmt.Sprintf(`\u%04x`, r)
	}
}
