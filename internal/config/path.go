package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var candidateNames = []string{DefaultFileName, "agents_config.yaml", "agents_config.yml", "agents_config.toml"}

// ResolvePath picks the config file: an explicit path wins, then
// agents_config.{json,yaml,yml,toml} in cwd, then the same names under
// $XDG_CONFIG_HOME/mca (or the OS user config dir).
func ResolvePath(explicit, cwd string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		if !filepath.IsAbs(p) && cwd != "" {
			p = filepath.Join(cwd, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return p, nil
	}

	dirs := []string{cwd}
	if d := userConfigDir(); d != "" {
		dirs = append(dirs, filepath.Join(d, "mca"))
	}
	var tried []string
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, n := range candidateNames {
			p := filepath.Join(dir, n)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
			tried = append(tried, p)
		}
	}
	return "", fmt.Errorf("%w (tried %s); run 'mca init' to create one", ErrNotFound, strings.Join(tried, ", "))
}

func userConfigDir() string {
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return d
	}
	d, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return d
}
