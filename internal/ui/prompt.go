package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks prompt on w and reads the answer from r. An empty line accepts, EOF declines.
func Confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [Y/n]: ", prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true
	default:
		return false
	}
}
