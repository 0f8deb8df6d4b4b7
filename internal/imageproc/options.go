package imageproc

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultBackground is used when letterboxing without an explicit colour.
const DefaultBackground = "#ffffff"

// Options is a preset merged with caller overrides.
type Options struct {
	Width               int     `json:"width"`
	Height              int     `json:"height"`
	Quality             float64 `json:"quality"`
	Format              Format  `json:"format"`
	MaintainAspectRatio bool    `json:"maintain_aspect_ratio"`
	BackgroundColor     string  `json:"background_color"`
}

// Validate reports the options outside their allowed range.
func (o Options) Validate() error {
	var problems []string
	if o.Width <= 0 {
		problems = append(problems, "width must be greater than 0")
	}
	if o.Height <= 0 {
		problems = append(problems, "height must be greater than 0")
	}
	if o.Quality <= 0 || o.Quality > 1 {
		problems = append(problems, "quality must be in (0, 1]")
	}
	if !o.Format.Valid() {
		problems = append(problems, fmt.Sprintf("format %q is not one of jpeg, png, webp", o.Format))
	}
	if _, err := parseBackground(o.BackgroundColor); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))
	}
	return nil
}

// Background returns the letterbox colour.
func (o Options) Background() color.Color {
	c, err := parseBackground(o.BackgroundColor)
	if err != nil {
		return color.White
	}
	return c
}

func parseBackground(s string) (color.Color, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "white":
		return color.White, nil
	case "black":
		return color.Black, nil
	case "transparent":
		return color.Transparent, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return nil, fmt.Errorf("background color %q is not a hex colour", s)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Overrides carries caller-supplied fields; nil fields keep the preset value.
type Overrides struct {
	Width               *int     `json:"width,omitempty"`
	Height              *int     `json:"height,omitempty"`
	Quality             *float64 `json:"quality,omitempty"`
	Format              *Format  `json:"format,omitempty"`
	MaintainAspectRatio *bool    `json:"maintain_aspect_ratio,omitempty"`
	BackgroundColor     *string  `json:"background_color,omitempty"`
}

// Empty reports whether no field is overridden.
func (o Overrides) Empty() bool {
	return o.Width == nil && o.Height == nil && o.Quality == nil && o.Format == nil &&
		o.MaintainAspectRatio == nil && o.BackgroundColor == nil
}

// Apply returns base with every non-nil override written over it.
func (o Overrides) Apply(base Options) Options {
	if o.Width != nil {
		base.Width = *o.Width
	}
	if o.Height != nil {
		base.Height = *o.Height
	}
	if o.Quality != nil {
		base.Quality = *o.Quality
	}
	if o.Format != nil {
		base.Format = *o.Format
	}
	if o.MaintainAspectRatio != nil {
		base.MaintainAspectRatio = *o.MaintainAspectRatio
	}
	if o.BackgroundColor != nil {
		base.BackgroundColor = *o.BackgroundColor
	}
	return base
}
