package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/trainset/pkg/errors"
	"github.com/matzehuels/trainset/pkg/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainset.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
prerendered_path = "machine_digits.zip"
curated_path = "curated.tar.gz"
batch_size = 64
seed = 7
mnist = false
`)

	opts, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if opts.PrerenderedPath != "machine_digits.zip" {
		t.Errorf("PrerenderedPath = %q", opts.PrerenderedPath)
	}
	if opts.CuratedPath != "curated.tar.gz" {
		t.Errorf("CuratedPath = %q", opts.CuratedPath)
	}
	if opts.BatchSize != 64 {
		t.Errorf("BatchSize = %d, want 64", opts.BatchSize)
	}
	if opts.Seed != 7 {
		t.Errorf("Seed = %d, want 7", opts.Seed)
	}
	if opts.MNIST {
		t.Error("MNIST should be disabled by the config")
	}

	// Keys absent from the file keep their defaults.
	defaults := pipeline.DefaultOptions()
	if !opts.Shuffle {
		t.Error("Shuffle default should survive a partial config")
	}
	if opts.EmptyCount != defaults.EmptyCount {
		t.Errorf("EmptyCount = %d, want default %d", opts.EmptyCount, defaults.EmptyCount)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("expected file-not-found error, got %v", err)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, `batch_size = "not a number"`)

	_, err := loadConfig(path)
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("expected invalid-config error, got %v", err)
	}
}

func TestMergeFlagOverrides(t *testing.T) {
	c := New(os.Stderr, LogInfo)
	cmd := c.buildCommand()
	if err := cmd.Flags().Set("batch-size", "16"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("seed", "99"); err != nil {
		t.Fatal(err)
	}

	loaded := pipeline.DefaultOptions()
	loaded.BatchSize = 64
	loaded.PrerenderedPath = "from_config.zip"

	flags := pipeline.DefaultOptions()
	flags.BatchSize = 16
	flags.Seed = 99

	mergeFlagOverrides(cmd, &loaded, &flags)

	if loaded.BatchSize != 16 {
		t.Errorf("BatchSize = %d, explicit flag should win over config", loaded.BatchSize)
	}
	if loaded.Seed != 99 {
		t.Errorf("Seed = %d, explicit flag should win over config", loaded.Seed)
	}
	if loaded.PrerenderedPath != "from_config.zip" {
		t.Errorf("PrerenderedPath = %q, unset flag should not clobber config", loaded.PrerenderedPath)
	}
}
