package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/timeflux-go/timeflux/internal/appconfig"
)

// parseDocument renders text through the env-var templater, then decodes
// it by file extension into both a generic JSON document (for schema
// validation) and a typed appconfig.App.
func parseDocument(path string, text []byte) (appconfig.App, []byte, error) {
	rendered := renderTemplate(string(text))

	var generic interface{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(rendered), &generic); err != nil {
			return appconfig.App{}, nil, fmt.Errorf("manager: parse YAML %q: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal([]byte(rendered), &generic); err != nil {
			return appconfig.App{}, nil, fmt.Errorf("manager: parse JSON %q: %w", path, err)
		}
	default:
		return appconfig.App{}, nil, fmt.Errorf("manager: unsupported application file extension %q", ext)
	}

	raw, err := json.Marshal(generic)
	if err != nil {
		return appconfig.App{}, nil, fmt.Errorf("manager: normalize %q to JSON: %w", path, err)
	}

	var app appconfig.App
	if err := json.Unmarshal(raw, &app); err != nil {
		return appconfig.App{}, nil, fmt.Errorf("manager: decode application %q: %w", path, err)
	}
	return app, raw, nil
}

// LoadFile reads path, templates it, parses it by extension (YAML or
// JSON), and validates the result against the application schema. It does
// not resolve imports; callers needing the full recursive load should use
// Load.
func LoadFile(path string) (appconfig.App, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return appconfig.App{}, fmt.Errorf("manager: read %q: %w", path, err)
	}
	app, raw, err := parseDocument(path, text)
	if err != nil {
		return appconfig.App{}, err
	}
	if err := validateApp(raw); err != nil {
		return appconfig.App{}, fmt.Errorf("manager: %q failed validation: %w", path, err)
	}
	return app, nil
}

// LoadMapping validates and decodes an application already provided as an
// in-memory mapping. No
// templating is applied — templating only makes sense against raw file
// text, a mapping is assumed already resolved.
func LoadMapping(mapping map[string]interface{}) (appconfig.App, error) {
	raw, err := json.Marshal(mapping)
	if err != nil {
		return appconfig.App{}, fmt.Errorf("manager: encode mapping: %w", err)
	}
	if err := validateApp(raw); err != nil {
		return appconfig.App{}, fmt.Errorf("manager: mapping failed validation: %w", err)
	}
	var app appconfig.App
	if err := json.Unmarshal(raw, &app); err != nil {
		return appconfig.App{}, fmt.Errorf("manager: decode mapping: %w", err)
	}
	return app, nil
}
