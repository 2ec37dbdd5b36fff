package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DerMene/cassandra-loader/pkg/errors"
	"github.com/DerMene/cassandra-loader/pkg/json"
)

// Load reads a YAML or JSON configuration file over cfg. Fields missing
// from the file keep their current values. ${VAR} references are replaced
// with environment values before parsing.
func Load(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}

	content := []byte(substituteEnvVars(string(data)))
	if isJSON(filePath) {
		err = json.Unmarshal(content, cfg)
	} else {
		err = yaml.Unmarshal(content, cfg)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse "+filePath)
	}
	return nil
}

// Save writes cfg to a YAML or JSON file, chosen by extension.
func Save(filePath string, cfg *Config) error {
	if isJSON(filePath) {
		if err := json.WriteFile(filePath, cfg); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file")
		}
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write config file")
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
