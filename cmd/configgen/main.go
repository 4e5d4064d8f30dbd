package main

import (
	"flag"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wearctl/internal/config"
	"github.com/danmuck/wearctl/internal/logging"
)

func main() {
	format := flag.String("format", "toml", "config format: toml|yaml")
	output := flag.String("output", "", "output path for config template (defaults to cmd/wearctl/config.<format>)")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/wearctl/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	logging.ConfigureRuntime()

	if *validate {
		if _, err := config.Load(*input); err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().Str("path", *input).Msg("validated config")
		return
	}

	f, err := config.ParseFormat(*format)
	if err != nil {
		log.Fatal().Err(err).Msg("unknown format")
	}
	target := *output
	if target == "" {
		target = filepath.Join("cmd", "wearctl", "config."+string(f))
	}
	if err := config.WriteTemplate(target, f, *force); err != nil {
		log.Fatal().Err(err).Msg("write template failed")
	}
	log.Info().Str("format", string(f)).Str("path", target).Msg("wrote config template")
}
