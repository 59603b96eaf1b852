package tokenizer

import "unicode/utf8"

// Decoder turns a token sequence back into text.
type Decoder interface {
	Decode(ids []int) (string, error)
}

// Delta is an edit of previously surfaced text: drop Replace trailing
// bytes, then append Text.
type Delta struct {
	Replace int
	Text    string
}

func (d Delta) Empty() bool { return d.Replace == 0 && d.Text == "" }

// Apply returns s with the edit applied. Replace is clamped to len(s).
func (d Delta) Apply(s string) string {
	n := len(s) - d.Replace
	if n < 0 {
		n = 0
	}
	return s[:n] + d.Text
}

// Diff computes the edit that turns old into new, anchored at their common
// prefix. The prefix is cut on a rune boundary so Text is never a split
// character.
func Diff(old, new string) Delta {
	p := 0
	for p < len(old) && p < len(new) && old[p] == new[p] {
		p++
	}
	for p > 0 && p < len(new) && !utf8.RuneStart(new[p]) {
		p--
	}
	return Delta{Replace: len(old) - p, Text: new[p:]}
}

// OutputStream rebuilds text from a growing token sequence. Every push
// decodes the whole sequence and reports the change against the text
// committed so far.
type OutputStream struct {
	dec  Decoder
	ids  []int
	text string
	full string
}

func NewOutputStream(dec Decoder) *OutputStream {
	return &OutputStream{dec: dec}
}

// PushToken appends id and returns the newly visible change. A trailing
// incomplete UTF-8 sequence is held back until later tokens complete it or
// Flush releases it.
func (s *OutputStream) PushToken(id int) (Delta, error) {
	s.ids = append(s.ids, id)
	full, err := s.dec.Decode(s.ids)
	if err != nil {
		s.ids = s.ids[:len(s.ids)-1]
		return Delta{}, err
	}
	s.full = full
	committed := completePrefix(full)
	d := Diff(s.text, committed)
	s.text = committed
	return d, nil
}

// Flush commits whatever is held back.
func (s *OutputStream) Flush() Delta {
	d := Diff(s.text, s.full)
	s.text = s.full
	return d
}

// Text is the committed text.
func (s *OutputStream) Text() string { return s.text }

// Decoded is the text of the full sequence, including any held-back bytes.
func (s *OutputStream) Decoded() string { return s.full }

func (s *OutputStream) Tokens() []int {
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *OutputStream) Len() int { return len(s.ids) }

func (s *OutputStream) Reset() {
	s.ids = s.ids[:0]
	s.text = ""
	s.full = ""
}

// completePrefix drops a trailing partial UTF-8 sequence.
func completePrefix(s string) string {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(s[i]) {
			continue
		}
		if utf8.FullRuneInString(s[i:]) {
			return s
		}
		return s[:i]
	}
	return s
}
