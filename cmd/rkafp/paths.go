package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// outputPath cleans an output file argument and creates its parent
// directory.
func outputPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("%w: empty output path", errCreateOutput)
	}
	out := filepath.Clean(p)
	if st, err := os.Stat(out); err == nil && st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", errCreateOutput, out)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", errCreateOutput, err)
	}
	return out, nil
}
