package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"spotifydl/internal/config"
)

func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	opts := &options{cfg: config.DefaultConfig()}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "")
	cmd.Flags().BoolVarP(&opts.cfg.Verbose, "verbose", "v", false, "")
	bindFlags(cmd.Flags(), &opts.cfg)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatal(err)
	}
	return opts.load(cmd.Flags())
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spotifydl.yaml")
	data := "audio_format: flac\nbitrate: 256k\nlyrics: true\nexclusion_filters: [karaoke]\noutput_dir: " + t.TempDir() + "\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parse(t, "-c", path, "--format", "opus", "-e", "live,cover", "-v")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.AudioFormat != "opus" {
		t.Errorf("AudioFormat = %q, flag should win", cfg.AudioFormat)
	}
	if cfg.Bitrate != "256k" || !cfg.Lyrics {
		t.Errorf("file values lost: bitrate %q, lyrics %v", cfg.Bitrate, cfg.Lyrics)
	}
	if !reflect.DeepEqual(cfg.ExclusionFilters, []string{"live", "cover"}) {
		t.Errorf("ExclusionFilters = %v", cfg.ExclusionFilters)
	}
	if !cfg.Verbose {
		t.Error("Verbose flag not applied")
	}
}

func TestDefaultsWithoutFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := parse(t)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AudioFormat != "mp3" || cfg.Bitrate != "192k" || cfg.CacheFile != ".spdlcache" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestInvalidFlagValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if _, err := parse(t, "--format", "wma"); err == nil || !strings.Contains(err.Error(), "unsupported audio format") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestNeedsCatalog(t *testing.T) {
	tests := []struct {
		inputs []string
		want   bool
	}{
		{[]string{"https://youtu.be/abc"}, false},
		{[]string{"https://youtu.be/abc", "saved-tracks"}, true},
		{[]string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC"}, true},
		{[]string{"not a url"}, false},
	}
	for _, tt := range tests {
		if got := needsCatalog(tt.inputs); got != tt.want {
			t.Errorf("needsCatalog(%v) = %v, want %v", tt.inputs, got, tt.want)
		}
	}
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init-config", "--path", path})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputTemplate != "{artistName}/{albumName}/{itemName}" {
		t.Errorf("OutputTemplate = %q", cfg.OutputTemplate)
	}

	cmd = newRootCommand()
	cmd.SetArgs([]string{"init-config", "--path", path})
	if err := cmd.Execute(); err == nil {
		t.Error("second init-config should refuse to overwrite")
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "spotifydl dev\n" {
		t.Errorf("version output = %q", out.String())
	}
}
