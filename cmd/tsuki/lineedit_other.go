//go:build !linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

func isTerminal(f *os.File) bool {
	st, err := f.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}

type lineEditor struct {
	out    io.Writer
	reader *bufio.Reader
}

func newLineEditor() *lineEditor {
	return &lineEditor{out: os.Stdout, reader: bufio.NewReader(os.Stdin)}
}

func (e *lineEditor) ReadLine(prompt string) (string, error) {
	fmt.Fprint(e.out, prompt)
	return readPlainLine(e.reader)
}
