package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/danmuck/ndnrevoke/internal/config"
)

func main() {
	kind := flag.String("kind", config.KindLedger, "config kind: hub|ledger|client")
	output := flag.String("output", "", "output path for config template (defaults to <kind>.toml)")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to <kind>.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	defaultPath := filepath.Join(".", *kind+".toml")

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		if err := config.ValidateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
