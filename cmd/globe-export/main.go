// globe-export writes the embeddable globe bundle to disk without a running
// server, for previewing a settings file or shipping the bundle from CI.
package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/sudorandom/dot-globe/pkg/config"
	"github.com/sudorandom/dot-globe/pkg/export"
)

var cli struct {
	Output   string `help:"Bundle path to write." short:"o" default:"dot-globe.zip" type:"path"`
	Config   string `help:"Config file path." type:"path" env:"GLOBE_CONFIG" placeholder:"FILE"`
	Settings string `help:"JSON settings file applied over the preset." type:"existingfile" optional:""`
	Preview  bool   `help:"Start from the preview preset instead of the home preset."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("globe-export"),
		kong.Description("Write the embeddable dot globe bundle to a file."))
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if cli.Config != "" {
		os.Setenv(config.ConfigPathEnvVar, cli.Config)
	}
	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)

	settings := cfg.Globe.Home
	if cli.Preview {
		settings = cfg.Globe.Preview
	}
	if cli.Settings != "" {
		data, err := os.ReadFile(cli.Settings)
		kctx.FatalIfErrorf(err)
		if err := settings.ApplyJSON(data); err != nil {
			log.Fatal().Err(err).Msg("Settings file rejected")
		}
	}

	out, err := os.Create(cli.Output)
	kctx.FatalIfErrorf(err)
	if err := export.WriteBundle(out, settings); err != nil {
		out.Close()
		os.Remove(cli.Output)
		log.Fatal().Err(err).Msg("Bundle write failed")
	}
	if err := out.Close(); err != nil {
		log.Fatal().Err(err).Msg("Bundle write failed")
	}
	log.Info().Str("path", cli.Output).Msg("Bundle written")
}
