package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{0, 128, 255, 255})
		}
	}
	path := filepath.Join(dir, "in.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "image-fetch "+Version)
	assert.Contains(t, out, "Git commit")
}

func TestFetchCommand(t *testing.T) {
	src := writeTestPNG(t, t.TempDir(), 64, 32)
	outDir := filepath.Join(t.TempDir(), "out")

	out, err := execute(t, "fetch", "--output", outDir, "--width", "16", "--height", "16", "--center-crop", "--transform", "grayscale", src, src)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1, "duplicate sources are written once")
	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, src, fields[0])
	assert.Equal(t, "16x16", fields[2])

	f, err := os.Open(fields[1])
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 16, cfg.Height)
}

func TestFetchCommand_RelativePath(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Base(writeTestPNG(t, dir, 8, 8))
	t.Chdir(dir)
	outDir := t.TempDir()

	out, err := execute(t, "fetch", "--output", outDir, "./"+name)
	require.NoError(t, err)

	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, "./"+name, fields[0])
	assert.Equal(t, "8x8", fields[2])
	assert.FileExists(t, fields[1])
}

func TestFetchCommand_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPNG(t, dir, 4, 4)
	missing := filepath.Join(dir, "missing.png")

	out, err := execute(t, "fetch", "--output", t.TempDir(), "--retry-budget", "0", src, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.Contains(t, out, src)
}

func TestFetchCommand_RequiresSource(t *testing.T) {
	_, err := execute(t, "fetch")
	require.Error(t, err)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nretryDelay: 2s\n"), 0o600))

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--workers", "6"}))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, "2s", cfg.RetryDelay.String())
}

func TestLoadConfig_Invalid(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "loud"}))
	_, err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logLevel")
}
