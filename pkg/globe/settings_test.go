package globe

import (
	"testing"
)

func TestHexToRGB(t *testing.T) {
	tests := []struct {
		hex     string
		want    RGB
		wantErr bool
	}{
		{"#000000", RGB{}, false},
		{"#ffffff", RGB{R: 1, G: 1, B: 1}, false},
		{"ff0000", RGB{R: 1}, false},
		{"#4c4c59", RGB{R: 76.0 / 255, G: 76.0 / 255, B: 89.0 / 255}, false},
		{"#fff", RGB{}, true},
		{"#gggggg", RGB{}, true},
		{"", RGB{}, true},
	}
	for _, tt := range tests {
		got, err := HexToRGB(tt.hex)
		if (err != nil) != tt.wantErr {
			t.Errorf("HexToRGB(%q) error = %v, wantErr %v", tt.hex, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("HexToRGB(%q) = %v, want %v", tt.hex, got, tt.want)
		}
	}
}

func TestHexRoundTrip(t *testing.T) {
	for _, hex := range []string{"#000000", "#ffffff", "#1a2b3c", "#4c80ff"} {
		c, err := HexToRGB(hex)
		if err != nil {
			t.Fatalf("HexToRGB(%q): %v", hex, err)
		}
		if got := RGBToHex(c); got != hex {
			t.Errorf("round trip %q -> %q", hex, got)
		}
	}
}

func TestRGBToHexClamps(t *testing.T) {
	if got := RGBToHex(RGB{R: 2, G: -1, B: 0.5}); got != "#ff0080" {
		t.Errorf("RGBToHex out-of-range = %q, want #ff0080", got)
	}
}

func TestRGBClamp(t *testing.T) {
	got := RGB{R: -0.5, G: 1.5, B: 0.25}.Clamp()
	want := RGB{R: 0, G: 1, B: 0.25}
	if got != want {
		t.Errorf("Clamp = %v, want %v", got, want)
	}
}

func TestApplyJSONPointUpdate(t *testing.T) {
	s := DefaultHome()
	if err := s.ApplyJSON([]byte(`{"rotationSpeed": 7, "autoRotate": false}`)); err != nil {
		t.Fatalf("ApplyJSON: %v", err)
	}
	if s.RotationSpeed != 7 {
		t.Errorf("RotationSpeed = %v, want 7", s.RotationSpeed)
	}
	if s.AutoRotate {
		t.Error("AutoRotate not overwritten")
	}
	// Untouched fields keep their defaults.
	if s.Scale != 1.1 {
		t.Errorf("Scale = %v, want untouched 1.1", s.Scale)
	}
	if s.ArcDensity != 6 {
		t.Errorf("ArcDensity = %v, want untouched 6", s.ArcDensity)
	}
}

func TestApplyJSONNestedColor(t *testing.T) {
	s := DefaultHome()
	if err := s.ApplyJSON([]byte(`{"landColor": {"r": 1, "g": 0, "b": 0.5}}`)); err != nil {
		t.Fatalf("ApplyJSON: %v", err)
	}
	if s.LandColor != (RGB{R: 1, G: 0, B: 0.5}) {
		t.Errorf("LandColor = %v", s.LandColor)
	}
	if s.GlowColor != DefaultHome().GlowColor {
		t.Error("GlowColor changed by unrelated update")
	}
}

func TestApplyJSONMalformed(t *testing.T) {
	s := DefaultHome()
	if err := s.ApplyJSON([]byte(`{"rotationSpeed": `)); err == nil {
		t.Error("malformed JSON accepted")
	}
}

func TestDefaultPreviewDiffersFromHome(t *testing.T) {
	home, preview := DefaultHome(), DefaultPreview()
	if !preview.TwoAxisRotation || !preview.GlitchEffect {
		t.Error("preview should enable two-axis rotation and the glitch effect")
	}
	if preview.Opacity != 1 || preview.OffsetY != 0 {
		t.Errorf("preview placement = opacity %v offsetY %v, want 1 and 0", preview.Opacity, preview.OffsetY)
	}
	if home.TwoAxisRotation || home.GlitchEffect {
		t.Error("home page should keep the quiet defaults")
	}
}
