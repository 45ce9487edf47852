package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

func writeBundle(t *testing.T, s globe.Settings) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteBundle(&buf, s); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	return zr
}

func readEntry(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(body)
	}
	t.Fatalf("entry %s missing from bundle", name)
	return ""
}

func TestBundleContainsAllFiles(t *testing.T) {
	zr := writeBundle(t, globe.DefaultPreview())
	want := []string{"index.html", "globe.css", "globe.js", "README.md"}
	if len(zr.File) != len(want) {
		t.Fatalf("bundle has %d entries, want %d", len(zr.File), len(want))
	}
	for i, name := range want {
		if zr.File[i].Name != name {
			t.Errorf("entry %d = %q, want %q", i, zr.File[i].Name, name)
		}
	}
}

func TestBundleEmbedsSettingsLiterally(t *testing.T) {
	s := globe.DefaultPreview()
	s.RotationSpeed = 9.5
	s.LandColor = globe.RGB{R: 0.25, G: 0.5, B: 0.75}
	zr := writeBundle(t, s)

	js := readEntry(t, zr, "globe.js")
	start := strings.Index(js, "export const SETTINGS = ")
	if start < 0 {
		t.Fatal("globe.js has no SETTINGS literal")
	}
	payload := js[start+len("export const SETTINGS = "):]
	end := strings.Index(payload, ";")
	if end < 0 {
		t.Fatal("SETTINGS literal not terminated")
	}

	var got globe.Settings
	if err := json.Unmarshal([]byte(payload[:end]), &got); err != nil {
		t.Fatalf("SETTINGS literal is not valid JSON: %v", err)
	}
	if got != s {
		t.Errorf("embedded settings = %+v, want %+v", got, s)
	}
}

func TestBundleCSSUsesPlacement(t *testing.T) {
	s := globe.DefaultHome()
	s.Opacity = 0.45
	s.OffsetX = 12
	s.OffsetY = -10
	zr := writeBundle(t, s)

	css := readEntry(t, zr, "globe.css")
	if !strings.Contains(css, "opacity: 0.45") {
		t.Errorf("css missing opacity:\n%s", css)
	}
	if !strings.Contains(css, "translate(12%, -10%)") {
		t.Errorf("css missing offsets:\n%s", css)
	}
}

func TestBundleJSCarriesCoreConstants(t *testing.T) {
	js := readEntry(t, writeBundle(t, globe.DefaultHome()), "globe.js")
	// The exported logic must match the live behavior for the same settings.
	for _, want := range []string{
		"FRAME_CONSTANT = 0.0005",
		"DRAG_SCALE = 0.005",
		"GLITCH_CHANCE = 0.15",
		"GLITCH_COOLDOWN_MS = 2000",
		"30 * 24 * 60 * 60 * 1000",
	} {
		if !strings.Contains(js, want) {
			t.Errorf("globe.js missing %q", want)
		}
	}
}

func TestBundleHTMLWiresTheScript(t *testing.T) {
	html := readEntry(t, writeBundle(t, globe.DefaultHome()), "index.html")
	if !strings.Contains(html, `from "./globe.js"`) {
		t.Error("index.html does not import globe.js")
	}
	if !strings.Contains(html, `globe.css`) {
		t.Error("index.html does not link globe.css")
	}
}
