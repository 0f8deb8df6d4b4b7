package imageproc

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Preset names shipped with the dashboard.
const (
	PresetWooCommerce = "woocommerce"
	PresetGallery     = "gallery"
	PresetThumbnail   = "thumbnail"
)

// Preset is an immutable named bundle of processing options.
type Preset struct {
	Name                string  `yaml:"-" json:"name"`
	Label               string  `yaml:"label" json:"label"`
	Width               int     `yaml:"width" json:"width"`
	Height              int     `yaml:"height" json:"height"`
	Quality             float64 `yaml:"quality" json:"quality"`
	Format              Format  `yaml:"format" json:"format"`
	MaintainAspectRatio *bool   `yaml:"maintain_aspect_ratio,omitempty" json:"maintain_aspect_ratio,omitempty"`
	BackgroundColor     string  `yaml:"background_color,omitempty" json:"background_color,omitempty"`
}

// Options returns the preset as processing options with defaults filled in.
func (p Preset) Options() Options {
	keep := true
	if p.MaintainAspectRatio != nil {
		keep = *p.MaintainAspectRatio
	}
	bg := p.BackgroundColor
	if bg == "" {
		bg = DefaultBackground
	}
	return Options{
		Width:               p.Width,
		Height:              p.Height,
		Quality:             p.Quality,
		Format:              p.Format,
		MaintainAspectRatio: keep,
		BackgroundColor:     bg,
	}
}

// With merges caller overrides over the preset; the override wins per field.
func (p Preset) With(o Overrides) Options {
	return o.Apply(p.Options())
}

// DefaultPresets returns the registry entries used by the product form.
func DefaultPresets() []Preset {
	return []Preset{
		{Name: PresetWooCommerce, Label: "WooCommerce (800x536px) - Recommended", Width: 800, Height: 536, Quality: 0.8, Format: FormatJPEG},
		{Name: PresetGallery, Label: "Gallery (1200x800px) - High quality", Width: 1200, Height: 800, Quality: 0.9, Format: FormatJPEG},
		{Name: PresetThumbnail, Label: "Thumbnail (300x200px) - Fast loading", Width: 300, Height: 200, Quality: 0.7, Format: FormatJPEG},
	}
}

// Registry is a fixed set of presets selected by key.
type Registry struct {
	presets map[string]Preset
	order   []string
}

// NewRegistry validates and indexes presets. Later duplicates replace earlier ones.
func NewRegistry(presets ...Preset) (*Registry, error) {
	r := &Registry{presets: make(map[string]Preset, len(presets))}
	for _, p := range presets {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: preset without a name", ErrInvalidOptions)
		}
		if err := p.Options().Validate(); err != nil {
			return nil, fmt.Errorf("preset %s: %w", p.Name, err)
		}
		if _, exists := r.presets[p.Name]; !exists {
			r.order = append(r.order, p.Name)
		}
		r.presets[p.Name] = p
	}
	return r, nil
}

// DefaultRegistry returns the built-in presets.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultPresets()...)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRegistry reads a YAML file of the form:
//
//	presets:
//	  banner:
//	    label: Banner
//	    width: 1600
//	    height: 400
//	    quality: 0.85
//	    format: image/webp
//
// Entries are added to the built-in presets, replacing ones with the same name.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var file struct {
		Presets map[string]Preset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}

	names := make([]string, 0, len(file.Presets))
	for name := range file.Presets {
		names = append(names, name)
	}
	sort.Strings(names)

	presets := DefaultPresets()
	for _, name := range names {
		p := file.Presets[name]
		p.Name = name
		presets = append(presets, p)
	}
	return NewRegistry(presets...)
}

// Get returns the preset registered under name.
func (r *Registry) Get(name string) (Preset, error) {
	p, ok := r.presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	return p, nil
}

// Names returns preset names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns presets in registration order.
func (r *Registry) All() []Preset {
	out := make([]Preset, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.presets[name])
	}
	return out
}
