package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultWriter is the default subtitle file writer
type DefaultWriter struct{}

// NewWriter creates a new subtitle file writer
func NewWriter() Writer {
	return &DefaultWriter{}
}

// Write writes the file as SRT to path, creating the directory if needed.
func (w *DefaultWriter) Write(path string, subtitle *File) error {
	if subtitle == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(SerializeSequence(subtitle.Entries)), 0o644); err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// SerializeSequence renders entries back to SRT.
func SerializeSequence(entries []Entry) string {
	var sb strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&sb, "%d\n", entry.ID)
		fmt.Fprintf(&sb, "%s\n", entry.Timecode)
		fmt.Fprintf(&sb, "%s\n\n", entry.Text)
	}
	return sb.String()
}
