package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrExists is returned by WriteDefault when the target exists and force is false.
var ErrExists = errors.New("config: file already exists")

type defaultFile struct {
	Agents []Worker `json:"agents" yaml:"agents"`
}

// WriteDefault writes the default worker list to path. An empty path means
// cwd/agents_config.json; a directory gets agents_config.json inside it.
// The format follows the extension (.json, .yaml, .yml).
func WriteDefault(path, cwd string, force bool) (string, error) {
	if path == "" {
		path = cwd
	}
	if !filepath.IsAbs(path) && cwd != "" {
		path = filepath.Join(cwd, path)
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	path = filepath.Clean(path)

	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}

	doc := defaultFile{Agents: DefaultWorkers}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
		data = append(data, '\n')
	default:
		return "", fmt.Errorf("config: unsupported output format %q (use .json or .yaml)", filepath.Ext(path))
	}
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
