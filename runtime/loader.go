package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileLoader loads scripts from files of one serialization format.
type FileLoader struct {
	format     ScriptFormat
	extensions []string
}

func NewJSONLoader() *FileLoader {
	return &FileLoader{format: FormatJSON, extensions: []string{"*.json"}}
}

func NewYAMLLoader() *FileLoader {
	return &FileLoader{format: FormatYAML, extensions: []string{"*.yaml", "*.yml"}}
}

func (l *FileLoader) Extensions() []string {
	return l.extensions
}

func (l *FileLoader) Load(filePath string) ([]Step, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading script file: %w", err)
	}

	steps, err := DecodeScript(data, l.format)
	if err != nil {
		return nil, fmt.Errorf("error parsing script file %s: %w", filePath, err)
	}
	return steps, nil
}

// LoadScript picks a loader by file extension.
func LoadScript(filePath string) ([]Step, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return NewJSONLoader().Load(filePath)
	case ".yaml", ".yml":
		return NewYAMLLoader().Load(filePath)
	default:
		return nil, fmt.Errorf("unsupported script file extension: %s", filePath)
	}
}
