package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sensorable/annotator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, annotator.DefaultOptions(), cfg.Options())

	classes, err := cfg.ClassTable()
	require.NoError(t, err)
	assert.Equal(t, annotator.DefaultClassTable().Names(), classes.Names())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annotator.yaml")
	yaml := `
classes:
  - name: Cell
    color: "#112233"
  - name: Nucleus
annotation:
  precision: 4
mask:
  ring_thickness: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	opts := cfg.Options()
	assert.Equal(t, 4, opts.Precision)
	assert.Equal(t, 2.0, opts.RingThickness)
	assert.Equal(t, 10.0, opts.PasteOffset, "unset values keep their defaults")
	assert.Equal(t, 0, opts.MaskClassOffset)

	classes, err := cfg.ClassTable()
	require.NoError(t, err)
	assert.Equal(t, []string{"Cell", "Nucleus"}, classes.Names())
	c, _ := classes.Class(0)
	assert.Equal(t, "#112233", annotator.HexColor(c.Color))
	c, _ = classes.Class(1)
	assert.Equal(t, annotator.Palette[1], annotator.HexColor(c.Color))
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes: [\n"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "annotator.yaml")
	cfg := Default()
	cfg.Mask.ClassOffset = 1
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no_classes", func(c *Config) { c.Classes = nil }},
		{"duplicate_class", func(c *Config) { c.Classes = append(c.Classes, ClassConfig{Name: "car"}) }},
		{"bad_color", func(c *Config) { c.Classes[0].Color = "blue" }},
		{"precision", func(c *Config) { c.Annotation.Precision = 0 }},
		{"paste_offset", func(c *Config) { c.Annotation.PasteOffset = -1 }},
		{"min_extent", func(c *Config) { c.Annotation.MinExtent = 0 }},
		{"history_limit", func(c *Config) { c.Annotation.HistoryLimit = -1 }},
		{"ring_thickness", func(c *Config) { c.Mask.RingThickness = 0 }},
		{"class_offset", func(c *Config) { c.Mask.ClassOffset = 256 }},
		{"mask_overflow", func(c *Config) { c.Mask.ClassOffset = 253 }},
		{"no_extensions", func(c *Config) { c.Images.Extensions = nil }},
		{"extension_without_dot", func(c *Config) { c.Images.Extensions = []string{"png"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
