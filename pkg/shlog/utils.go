package shlog

import (
	"io"
	"os"
)

// newWriter creates a new file writer based on the provided filepath.
// If the filepath is empty, it returns os.Stderr as the writer.
// Otherwise, it opens the file with the given filepath in append mode
// and creates it if it doesn't exist.
func newWriter(filepath string) (*os.File, io.Writer, error) {
	if filepath == "" {
		return nil, os.Stderr, nil
	}
	f, err := os.OpenFile(filepath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}
