// Package export assembles the downloadable bundle: a static HTML/CSS/JS
// snapshot of the globe with the visitor's settings baked in.
package export

import (
	"archive/zip"
	"embed"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/goccy/go-json"

	"github.com/sudorandom/dot-globe/pkg/globe"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// bundle file names inside the zip, in write order.
var bundleFiles = []struct {
	name string
	tmpl string
}{
	{"index.html", "index.html.tmpl"},
	{"globe.css", "globe.css.tmpl"},
	{"globe.js", "globe.js.tmpl"},
	{"README.md", "README.md.tmpl"},
}

type templateData struct {
	SettingsJSON string
	Opacity      float64
	OffsetX      float64
	OffsetY      float64
	ExportedAt   string
}

// WriteBundle renders the bundle for the given settings snapshot into w as a
// zip archive.
func WriteBundle(w io.Writer, s globe.Settings) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	data := templateData{
		SettingsJSON: string(raw),
		Opacity:      s.Opacity,
		OffsetX:      s.OffsetX,
		OffsetY:      s.OffsetY,
		ExportedAt:   time.Now().UTC().Format("2006-01-02"),
	}

	zw := zip.NewWriter(w)
	for _, f := range bundleFiles {
		fw, err := zw.Create(f.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.name, err)
		}
		if err := templates.ExecuteTemplate(fw, f.tmpl, data); err != nil {
			return fmt.Errorf("render %s: %w", f.name, err)
		}
	}
	return zw.Close()
}
