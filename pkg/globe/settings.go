package globe

import (
	"fmt"

	"github.com/goccy/go-json"
)

// RGB is a color with channels normalized to [0, 1], the form the renderer
// consumes directly.
type RGB struct {
	R float64 `json:"r" validate:"gte=0,lte=1"`
	G float64 `json:"g" validate:"gte=0,lte=1"`
	B float64 `json:"b" validate:"gte=0,lte=1"`
}

// Clamp returns the color with every channel forced into [0, 1].
func (c RGB) Clamp() RGB {
	return RGB{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HexToRGB parses a "#rrggbb" (or "rrggbb") color into normalized channels.
func HexToRGB(hex string) (RGB, error) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", hex)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return RGB{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}, nil
}

// RGBToHex formats normalized channels as "#rrggbb".
func RGBToHex(c RGB) string {
	c = c.Clamp()
	return fmt.Sprintf("#%02x%02x%02x",
		uint8(c.R*255+0.5), uint8(c.G*255+0.5), uint8(c.B*255+0.5))
}

// Settings is the flat configuration record that parameterizes the whole
// globe: colors, speeds, toggles and screen placement. A Settings value is
// copied into each renderer instance; live components read the copy they were
// started with.
type Settings struct {
	RotationSpeed    float64 `json:"rotationSpeed" koanf:"rotation_speed" validate:"gte=0,lte=20"`
	MouseSensitivity float64 `json:"mouseSensitivity" koanf:"mouse_sensitivity" validate:"gte=0,lte=200"`
	DotSize          float64 `json:"dotSize" koanf:"dot_size" validate:"gt=0,lte=10"`
	Scale            float64 `json:"scale" koanf:"scale" validate:"gt=0,lte=4"`
	AutoRotate       bool    `json:"autoRotate" koanf:"auto_rotate"`
	TwoAxisRotation  bool    `json:"twoAxisRotation" koanf:"two_axis_rotation"`

	LandColor RGB `json:"landColor" koanf:"land_color"`
	GlowColor RGB `json:"glowColor" koanf:"glow_color"`

	GlitchEffect bool `json:"glitchEffect" koanf:"glitch_effect"`

	ShowArcs          bool    `json:"showArcs" koanf:"show_arcs"`
	ArcColor          RGB     `json:"arcColor" koanf:"arc_color"`
	ArcAltitude       float64 `json:"arcAltitude" koanf:"arc_altitude" validate:"gte=0,lte=1"`
	ArcAnimationSpeed float64 `json:"arcAnimationSpeed" koanf:"arc_animation_speed" validate:"gt=0,lte=10"`
	ArcDensity        int     `json:"arcDensity" koanf:"arc_density" validate:"gte=1,lte=10"`

	HeadquartersLat float64 `json:"headquartersLat" koanf:"headquarters_lat" validate:"gte=-90,lte=90"`
	HeadquartersLng float64 `json:"headquartersLng" koanf:"headquarters_lng" validate:"gte=-180,lte=180"`

	ShowVisitorMarkers bool `json:"showVisitorMarkers" koanf:"show_visitor_markers"`

	Opacity float64 `json:"opacity" koanf:"opacity" validate:"gte=0,lte=1"`
	OffsetX float64 `json:"offsetX" koanf:"offset_x" validate:"gte=-100,lte=100"`
	OffsetY float64 `json:"offsetY" koanf:"offset_y" validate:"gte=-100,lte=100"`
}

// DefaultHome returns the settings used by the home page background.
func DefaultHome() Settings {
	return Settings{
		RotationSpeed:      3,
		MouseSensitivity:   40,
		DotSize:            1.2,
		Scale:              1.1,
		AutoRotate:         true,
		TwoAxisRotation:    false,
		LandColor:          RGB{R: 0.3, G: 0.3, B: 0.35},
		GlowColor:          RGB{R: 0.1, G: 0.5, B: 1},
		GlitchEffect:       false,
		ShowArcs:           true,
		ArcColor:           RGB{R: 0.2, G: 0.7, B: 1},
		ArcAltitude:        0.35,
		ArcAnimationSpeed:  1,
		ArcDensity:         6,
		HeadquartersLat:    52.52, // Berlin
		HeadquartersLng:    13.405,
		ShowVisitorMarkers: true,
		Opacity:            0.9,
		OffsetX:            0,
		OffsetY:            -10,
	}
}

// DefaultPreview returns the settings the preview editor starts from. The
// preview page centers the globe and enables every feature so all controls
// have something visible to act on.
func DefaultPreview() Settings {
	s := DefaultHome()
	s.TwoAxisRotation = true
	s.GlitchEffect = true
	s.Opacity = 1
	s.OffsetX = 0
	s.OffsetY = 0
	return s
}

// ApplyJSON performs a point update: fields present in the JSON document
// overwrite the receiver, absent fields keep their value.
func (s *Settings) ApplyJSON(data []byte) error {
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	return nil
}
