//go:build linux

package main

import (
	"errors"
	"io"
	"testing"
)

func feedAll(t *testing.T, s *editState, input string) (string, bool, error) {
	t.Helper()
	for i := 0; i < len(input); i++ {
		line, done, err := s.feed(input[i])
		if err != nil || done {
			return line, done, err
		}
	}
	return "", false, nil
}

func TestEditStateEditing(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello\r", "hello"},
		{"insert after left arrow", "ab\x1b[DX\r", "aXb"},
		{"backspace", "abc\x7f\r", "ab"},
		{"home then insert", "bc\x01a\r", "abc"},
		{"ctrl-w deletes word", "one two\x17\r", "one "},
		{"delete key", "abc\x1b[H\x1b[3~\r", "bc"},
		{"alt-b word left", "one two\x1bbX\r", "one Xtwo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := &editState{prompt: "> ", out: io.Discard}
			got, done, err := feedAll(t, s, tc.input)
			if err != nil || !done {
				t.Fatalf("done=%v err=%v", done, err)
			}
			if got != tc.want {
				t.Fatalf("line = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEditStateHistory(t *testing.T) {
	t.Parallel()

	hist := []string{"first", "second"}
	s := &editState{prompt: "> ", out: io.Discard, hist: hist, histPos: len(hist)}
	got, _, _ := feedAll(t, s, "dr\x1b[A\x1b[A\x1b[B\r")
	if got != "second" {
		t.Fatalf("line = %q, want second", got)
	}

	s = &editState{prompt: "> ", out: io.Discard, hist: hist, histPos: len(hist)}
	got, _, _ = feedAll(t, s, "dr\x1b[A\x1b[B\r")
	if got != "dr" {
		t.Fatalf("draft not restored: %q", got)
	}
}

func TestEditStateEOF(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"\x04", "abc\x03"} {
		s := &editState{prompt: "> ", out: io.Discard}
		_, _, err := feedAll(t, s, input)
		if !errors.Is(err, io.EOF) {
			t.Fatalf("%q: expected io.EOF, got %v", input, err)
		}
	}
}
