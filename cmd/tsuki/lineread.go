package main

import (
	"bufio"
	"io"
	"strings"
)

// readPlainLine reads one line without the line terminator. io.EOF is only
// returned when nothing was read.
func readPlainLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString('\n')
	if err == io.EOF && s != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
