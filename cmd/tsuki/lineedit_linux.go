//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)
	return err == nil
}

// lineEditor reads one line at a time from a raw-mode terminal, with
// cursor movement and history.
type lineEditor struct {
	in      *os.File
	out     io.Writer
	history []string
	reader  *bufio.Reader
}

func newLineEditor() *lineEditor {
	return &lineEditor{in: os.Stdin, out: os.Stdout}
}

// ReadLine returns io.EOF on Ctrl+C, or on Ctrl+D at an empty line.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		if e.reader == nil {
			e.reader = bufio.NewReader(e.in)
		}
		fmt.Fprint(e.out, prompt)
		return readPlainLine(e.reader)
	}

	fd := int(e.in.Fd())
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, old) }()

	s := editState{prompt: prompt, out: e.out, hist: e.history, histPos: len(e.history)}
	s.redraw()
	var buf [16]byte
	for {
		n, err := e.in.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			line, done, err := s.feed(b)
			if err != nil {
				return "", err
			}
			if done {
				if strings.TrimSpace(line) != "" {
					e.history = append(e.history, line)
				}
				return line, nil
			}
		}
	}
}

type editState struct {
	prompt string
	out    io.Writer
	line   []byte
	cursor int

	esc    int
	escBuf strings.Builder

	hist    []string
	histPos int
	draft   string
}

func (s *editState) redraw() {
	fmt.Fprintf(s.out, "\r%s%s\x1b[K", s.prompt, s.line)
	if s.cursor < len(s.line) {
		fmt.Fprintf(s.out, "\r%s%s", s.prompt, s.line[:s.cursor])
	}
}

// feed consumes one input byte.
func (s *editState) feed(b byte) (string, bool, error) {
	switch s.esc {
	case 1:
		s.esc = 0
		switch b {
		case '[':
			s.esc = 2
			s.escBuf.Reset()
		case 'b', 'B':
			s.wordLeft()
		case 'f', 'F':
			s.wordRight()
		case 127:
			s.deleteWordBack()
		}
		return "", false, nil
	case 2:
		s.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			s.esc = 0
			s.csi(s.escBuf.String())
		}
		return "", false, nil
	}

	switch b {
	case 27:
		s.esc = 1
	case '\r', '\n':
		fmt.Fprint(s.out, "\r\n")
		return string(s.line), true, nil
	case 3: // Ctrl+C
		fmt.Fprint(s.out, "^C\r\n")
		return "", false, io.EOF
	case 4: // Ctrl+D
		if len(s.line) == 0 {
			fmt.Fprint(s.out, "\r\n")
			return "", false, io.EOF
		}
	case 127, 8:
		if s.cursor > 0 {
			s.line = append(s.line[:s.cursor-1], s.line[s.cursor:]...)
			s.cursor--
			s.redraw()
		}
	case 1: // Ctrl+A
		s.cursor = 0
		s.redraw()
	case 5: // Ctrl+E
		s.cursor = len(s.line)
		s.redraw()
	case 23: // Ctrl+W
		s.deleteWordBack()
	default:
		if b >= 32 {
			s.line = append(s.line, 0)
			copy(s.line[s.cursor+1:], s.line[s.cursor:])
			s.line[s.cursor] = b
			s.cursor++
			s.redraw()
		}
	}
	return "", false, nil
}

func (s *editState) csi(seq string) {
	switch seq {
	case "A":
		if s.histPos == 0 {
			return
		}
		if s.histPos == len(s.hist) {
			s.draft = string(s.line)
		}
		s.histPos--
		s.setLine(s.hist[s.histPos])
	case "B":
		if s.histPos >= len(s.hist) {
			return
		}
		s.histPos++
		if s.histPos == len(s.hist) {
			s.setLine(s.draft)
		} else {
			s.setLine(s.hist[s.histPos])
		}
	case "D":
		if s.cursor > 0 {
			s.cursor--
			s.redraw()
		}
	case "C":
		if s.cursor < len(s.line) {
			s.cursor++
			s.redraw()
		}
	case "H":
		s.cursor = 0
		s.redraw()
	case "F":
		s.cursor = len(s.line)
		s.redraw()
	case "3~":
		if s.cursor < len(s.line) {
			s.line = append(s.line[:s.cursor], s.line[s.cursor+1:]...)
			s.redraw()
		}
	case "1;5D", "5D":
		s.wordLeft()
	case "1;5C", "5C":
		s.wordRight()
	}
}

func (s *editState) setLine(v string) {
	s.line = append(s.line[:0], v...)
	s.cursor = len(s.line)
	s.redraw()
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

func (s *editState) wordStart() int {
	i := s.cursor
	for i > 0 && isBlank(s.line[i-1]) {
		i--
	}
	for i > 0 && !isBlank(s.line[i-1]) {
		i--
	}
	return i
}

func (s *editState) wordLeft() {
	s.cursor = s.wordStart()
	s.redraw()
}

func (s *editState) wordRight() {
	for s.cursor < len(s.line) && isBlank(s.line[s.cursor]) {
		s.cursor++
	}
	for s.cursor < len(s.line) && !isBlank(s.line[s.cursor]) {
		s.cursor++
	}
	s.redraw()
}

func (s *editState) deleteWordBack() {
	start := s.wordStart()
	s.line = append(s.line[:start], s.line[s.cursor:]...)
	s.cursor = start
	s.redraw()
}
