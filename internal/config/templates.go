package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const templateHeader = "# wearctl configuration\n"

// Template renders Default in format.
func Template(format Format) (string, error) {
	var (
		body []byte
		err  error
	)
	switch format {
	case FormatTOML:
		body, err = toml.Marshal(Default())
	case FormatYAML:
		body, err = yaml.Marshal(Default())
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return "", fmt.Errorf("render %s template: %w", format, err)
	}
	return templateHeader + string(body), nil
}

func WriteTemplate(path string, format Format, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
