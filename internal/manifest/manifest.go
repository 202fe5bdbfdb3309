// Package manifest loads declarative binding definitions from YAML.
package manifest

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/sysbind/internal/binding"
)

// File is the top-level manifest document.
type File struct {
	Bindings []Entry `yaml:"bindings"`
}

// Entry declares one binding. Startup defaults to true when omitted.
type Entry struct {
	Key             string   `yaml:"key"`
	Kind            string   `yaml:"kind"`
	Category        string   `yaml:"category"`
	Path            string   `yaml:"path"`
	Paths           []string `yaml:"paths"`
	Startup         *bool    `yaml:"startup"`
	MultiFile       bool     `yaml:"multifile"`
	ValueChecked    string   `yaml:"value_checked"`
	ValueNotChecked string   `yaml:"value_not_checked"`
	Decode          string   `yaml:"decode"`
	Reinit          bool     `yaml:"reinit"`
	Options         []string `yaml:"options"`
}

// Load reads and validates a manifest file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates manifest YAML.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks keys are present and unique and enumerations are known.
func (f File) Validate() error {
	seen := make(map[string]bool, len(f.Bindings))
	for i, e := range f.Bindings {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			return fmt.Errorf("binding #%d: key is required", i+1)
		}
		if seen[key] {
			return fmt.Errorf("binding %q: duplicate key", key)
		}
		seen[key] = true

		kind, err := binding.ParseKind(e.Kind)
		if err != nil {
			return fmt.Errorf("binding %q: %w", key, err)
		}
		if _, err := binding.ParseDecodeMode(e.Decode); err != nil {
			return fmt.Errorf("binding %q: %w", key, err)
		}
		if strings.TrimSpace(e.Path) != "" && len(e.Paths) > 0 {
			return fmt.Errorf("binding %q: path and paths are mutually exclusive", key)
		}
		if kind == binding.KindList && (e.ValueChecked != "" || e.ValueNotChecked != "") {
			return fmt.Errorf("binding %q: value_checked/value_not_checked apply to toggles only", key)
		}
		if kind == binding.KindToggle && len(e.Options) > 0 {
			return fmt.Errorf("binding %q: options apply to lists only", key)
		}
	}
	return nil
}

// Defaults applied to every binding built from a manifest.
type Defaults struct {
	ReinitDelay    time.Duration
	ParallelFanOut bool
}

// BindingOptions converts an entry into binding options. The entry must have
// passed Validate.
func (e Entry) BindingOptions(d Defaults) binding.Options {
	kind, _ := binding.ParseKind(e.Kind)
	mode, _ := binding.ParseDecodeMode(e.Decode)
	startup := true
	if e.Startup != nil {
		startup = *e.Startup
	}
	return binding.Options{
		Key:             strings.TrimSpace(e.Key),
		Kind:            kind,
		Category:        strings.TrimSpace(e.Category),
		Path:            e.Path,
		Paths:           e.Paths,
		MultiFile:       e.MultiFile,
		Startup:         startup,
		ValueChecked:    e.ValueChecked,
		ValueNotChecked: e.ValueNotChecked,
		Decode:          mode,
		Choices:         e.Options,
		ShouldReinit:    e.Reinit,
		ReinitDelay:     d.ReinitDelay,
		ParallelFanOut:  d.ParallelFanOut,
	}
}

// Build creates a Screen holding one binding per manifest entry.
func (f File) Build(deps binding.Deps, d Defaults) (*binding.Screen, error) {
	screen := binding.NewScreen()
	for _, e := range f.Bindings {
		if err := screen.Add(binding.New(e.BindingOptions(d), deps)); err != nil {
			screen.Close()
			return nil, err
		}
	}
	return screen, nil
}
