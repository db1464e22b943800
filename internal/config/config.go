package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/annotator"
	"gopkg.in/yaml.v2"
)

// Config holds the annotator configuration.
type Config struct {
	Classes    []ClassConfig    `yaml:"classes"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Mask       MaskConfig       `yaml:"mask"`
	Images     ImagesConfig     `yaml:"images"`
}

// ClassConfig is one entry of the class table. The position in the list is the class id.
type ClassConfig struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color,omitempty"` // #RRGGBB, defaults to the palette color.
}

// AnnotationConfig holds the editing and export options.
type AnnotationConfig struct {
	Precision    int     `yaml:"precision"`
	PasteOffset  float64 `yaml:"paste_offset"`
	MinExtent    float64 `yaml:"min_extent"`
	HistoryLimit int     `yaml:"history_limit"`
}

// MaskConfig holds the segmentation mask options.
type MaskConfig struct {
	RingThickness float64 `yaml:"ring_thickness"`
	ClassOffset   int     `yaml:"class_offset"`
}

// ImagesConfig holds the folder scanning options.
type ImagesConfig struct {
	Extensions []string `yaml:"extensions"`
}

// Default returns a configuration with default values
func Default() *Config {
	opts := annotator.DefaultOptions()
	cfg := &Config{
		Annotation: AnnotationConfig{
			Precision:    opts.Precision,
			PasteOffset:  opts.PasteOffset,
			MinExtent:    opts.MinExtent,
			HistoryLimit: opts.HistoryLimit,
		},
		Mask: MaskConfig{
			RingThickness: opts.RingThickness,
			ClassOffset:   opts.MaskClassOffset,
		},
		Images: ImagesConfig{
			Extensions: append([]string(nil), annotator.DefaultImageExtensions...),
		},
	}
	for i, name := range annotator.DefaultClassTable().Names() {
		cfg.Classes = append(cfg.Classes, ClassConfig{Name: name, Color: annotator.Palette[i]})
	}
	return cfg
}

// LoadFromFile loads configuration from a YAML file. Missing settings keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	config.Classes = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if len(config.Classes) == 0 {
		config.Classes = Default().Classes
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("classes cannot be empty")
	}
	if _, err := c.ClassTable(); err != nil {
		return fmt.Errorf("classes: %w", err)
	}

	if c.Annotation.Precision < 1 || c.Annotation.Precision > 12 {
		return fmt.Errorf("annotation.precision must be between 1 and 12")
	}
	if c.Annotation.PasteOffset < 0 {
		return fmt.Errorf("annotation.paste_offset must not be negative")
	}
	if c.Annotation.MinExtent <= 0 {
		return fmt.Errorf("annotation.min_extent must be positive")
	}
	if c.Annotation.HistoryLimit < 0 {
		return fmt.Errorf("annotation.history_limit must not be negative")
	}

	if c.Mask.RingThickness <= 0 {
		return fmt.Errorf("mask.ring_thickness must be positive")
	}
	if c.Mask.ClassOffset < 0 || c.Mask.ClassOffset > 255 {
		return fmt.Errorf("mask.class_offset must be between 0 and 255")
	}
	if n := len(c.Classes) - 1 + c.Mask.ClassOffset; n > 255 {
		return fmt.Errorf("the largest mask value %d does not fit into 8 bits", n)
	}

	if len(c.Images.Extensions) == 0 {
		return fmt.Errorf("images.extensions cannot be empty")
	}
	for _, ext := range c.Images.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("images.extensions: %q must start with a dot", ext)
		}
	}

	return nil
}

// ClassTable builds the class table from the configured classes.
func (c *Config) ClassTable() (*annotator.ClassTable, error) {
	t := &annotator.ClassTable{}
	for _, cls := range c.Classes {
		if _, err := t.Add(cls.Name, cls.Color); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Options returns the session options.
func (c *Config) Options() annotator.Options {
	return annotator.Options{
		Precision:       c.Annotation.Precision,
		PasteOffset:     c.Annotation.PasteOffset,
		RingThickness:   c.Mask.RingThickness,
		MinExtent:       c.Annotation.MinExtent,
		MaskClassOffset: c.Mask.ClassOffset,
		HistoryLimit:    c.Annotation.HistoryLimit,
	}
}
