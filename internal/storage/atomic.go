package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteFile writes data to a temporary sibling and renames it over filename,
// so readers never observe a partially written cache file.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := filename + ".tmp." + uuid.NewString()[:8]

	if err := os.WriteFile(tempFile, data, perm); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadFile returns the file contents, or nil and no error if it does not exist.
func ReadFile(filename string) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
