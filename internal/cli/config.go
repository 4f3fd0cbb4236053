package cli

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pipeline"
)

// loadConfig reads a TOML config file into pipeline options. Keys missing
// from the file keep their defaults, so a minimal config only names the
// source paths:
//
//	prerendered_path = "machine_digits.zip"
//	curated_path = "curated.tar.gz"
//	real_path = "cells"
//	batch_size = 128
func loadConfig(path string) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrap(errors.ErrCodeFileNotFound, err, "config %s", path)
	}
	if err := toml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrap(errors.ErrCodeInvalidConfig, err, "config %s", path)
	}
	return opts, nil
}
