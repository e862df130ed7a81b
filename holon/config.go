package holon

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigProvider loads named configuration sections (one per module) from a
// YAML or TOML file, mirroring the teacher's multi-format config feeder
// stack. Modules call RegisterConfigSection during RegisterConfig to
// declare where their settings live in the document; DecodeSection then
// unmarshals that subtree into the module's config struct.
type ConfigProvider struct {
	raw map[string]any
}

// LoadConfigFile reads a YAML or TOML document (selected by extension) into
// a ConfigProvider. An empty path yields a provider with no sections, so
// every module falls back to its built-in defaults.
func LoadConfigFile(path string) (*ConfigProvider, error) {
	if path == "" {
		return &ConfigProvider{raw: map[string]any{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	switch ext := fileExt(path); ext {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse toml config %s: %w", path, err)
		}
	default:
		return nil, NewError(KindSchema, fmt.Sprintf("unsupported config format %q", ext))
	}
	return &ConfigProvider{raw: raw}, nil
}

func fileExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}

// DecodeSection unmarshals the named top-level section into out, a pointer
// to the caller's config struct. A missing section is not an error — out is
// left at its existing (typically default-populated) value.
func (c *ConfigProvider) DecodeSection(name string, out any) error {
	if c == nil {
		return nil
	}
	section, ok := c.raw[name]
	if !ok {
		return nil
	}
	// Round-trip through YAML to rely on a single, well-tested decoder for
	// both source formats: TOML values land in c.raw as the same
	// map[string]any/[]any/scalar shapes YAML produces.
	buf, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("re-marshal config section %q: %w", name, err)
	}
	if err := yaml.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decode config section %q: %w", name, err)
	}
	return nil
}
