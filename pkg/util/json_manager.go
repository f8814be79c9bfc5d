package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONManager handles reading and writing a JSON document at a fixed path.
type JSONManager struct {
	filePath string
}

// NewJSONManager creates a new JSONManager for the given file.
func NewJSONManager(filePath string) *JSONManager {
	return &JSONManager{filePath: filePath}
}

// Load reads the JSON file and unmarshals it into the provided structure.
// A missing file is reported via os.IsNotExist on the returned error so
// callers can treat it as an empty document.
func (m *JSONManager) Load(data any) error {
	fileData, err := os.ReadFile(m.filePath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(fileData, data); err != nil {
		return fmt.Errorf("failed to unmarshal json: %w", err)
	}

	return nil
}

// Save marshals the provided structure and overwrites the whole file,
// pretty-printed, creating parent directories as needed.
func (m *JSONManager) Save(data any) error {
	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal json: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(m.filePath, fileData, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
