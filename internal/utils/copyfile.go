package utils

import (
	"fmt"
	"io"
	"os"
)

// CopyFile copies a file from src to dst, preserving the source mode.
// An existing dst is overwritten.
func CopyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer source.Close()

	sourceInfo, err := source.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	destination, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, sourceInfo.Mode())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	copied, err := io.Copy(destination, source)
	if err != nil {
		destination.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := destination.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}

	if copied != sourceInfo.Size() {
		return fmt.Errorf("incomplete copy: expected %d bytes, got %d bytes", sourceInfo.Size(), copied)
	}
	return nil
}
