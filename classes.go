package annotator

// The class table maps class ids to names and display colors.

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Palette holds the default class colors, assigned by class id.
var Palette = []string{
	"#FF6B6B", // Red
	"#4ECDC4", // Teal
	"#45B7D1", // Blue
	"#96CEB4", // Green
	"#FFEEAD", // Yellow
	"#D4A5A5", // Pink
	"#9B59B6", // Purple
	"#3498DB", // Light blue
	"#E67E22", // Orange
	"#2ECC71", // Emerald
}

// Class is a named object category.
type Class struct {
	Name  string
	Color color.RGBA
}

// ClassTable is the ordered list of classes for a session. A class id is the index into the table.
// Classes can be added and edited but never removed, so ids stay stable.
type ClassTable struct {
	classes []Class
}

// NewClassTable creates a table from names, using the default palette for colors.
func NewClassTable(names ...string) (*ClassTable, error) {
	t := &ClassTable{}
	for _, name := range names {
		if _, err := t.Add(name, ""); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// DefaultClassTable returns the table used when no classes are configured.
func DefaultClassTable() *ClassTable {
	t, _ := NewClassTable("Car", "Person", "Bicycle", "Dog")
	return t
}

// Add appends a class and returns its id. An empty hexColor selects the palette color for the id.
func (t *ClassTable) Add(name, hexColor string) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("empty class name")
	}
	if _, found := t.IndexOf(name); found {
		return 0, fmt.Errorf("class %q already exists", name)
	}

	id := len(t.classes)
	if hexColor == "" {
		hexColor = Palette[id%len(Palette)]
	}
	c, err := ParseHexColor(hexColor)
	if err != nil {
		return 0, err
	}

	t.classes = append(t.classes, Class{Name: name, Color: c})
	return id, nil
}

// Rename changes the name of class id.
func (t *ClassTable) Rename(id int, name string) error {
	if !t.Valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownClass, id)
	}
	name = strings.TrimSpace(name)
	if other, found := t.IndexOf(name); found && other != id {
		return fmt.Errorf("class %q already exists", name)
	}
	t.classes[id].Name = name
	return nil
}

// SetColor changes the display color of class id.
func (t *ClassTable) SetColor(id int, hexColor string) error {
	if !t.Valid(id) {
		return fmt.Errorf("%w: %d", ErrUnknownClass, id)
	}
	c, err := ParseHexColor(hexColor)
	if err != nil {
		return err
	}
	t.classes[id].Color = c
	return nil
}

// Len is the number of classes.
func (t *ClassTable) Len() int {
	return len(t.classes)
}

// Valid reports whether id indexes the table.
func (t *ClassTable) Valid(id int) bool {
	return id >= 0 && id < len(t.classes)
}

// Class returns the class with the given id.
func (t *ClassTable) Class(id int) (Class, bool) {
	if !t.Valid(id) {
		return Class{}, false
	}
	return t.classes[id], true
}

// IndexOf looks up a class id by case-insensitive name.
func (t *ClassTable) IndexOf(name string) (int, bool) {
	for i, c := range t.classes {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// Names returns the class names in id order.
func (t *ClassTable) Names() []string {
	names := make([]string, len(t.classes))
	for i, c := range t.classes {
		names[i] = c.Name
	}
	return names
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %v", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// HexColor formats c as "#RRGGBB".
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
