package annotator

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassTable(t *testing.T) {
	table := DefaultClassTable()
	assert.Equal(t, []string{"Car", "Person", "Bicycle", "Dog"}, table.Names())

	id, err := table.Add("Truck", "")
	require.NoError(t, err)
	assert.Equal(t, 4, id)
	c, ok := table.Class(id)
	require.True(t, ok)
	assert.Equal(t, "#FFEEAD", HexColor(c.Color))

	_, err = table.Add("person", "")
	assert.Error(t, err, "names are unique regardless of case")
	_, err = table.Add("  ", "")
	assert.Error(t, err)

	i, found := table.IndexOf("BICYCLE")
	assert.True(t, found)
	assert.Equal(t, 2, i)

	require.NoError(t, table.Rename(0, "Automobile"))
	assert.Error(t, table.Rename(0, "Dog"))
	assert.ErrorIs(t, table.Rename(9, "X"), ErrUnknownClass)

	require.NoError(t, table.SetColor(1, "#010203"))
	c, _ = table.Class(1)
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 0xff}, c.Color)
	assert.Error(t, table.SetColor(1, "red"))

	assert.True(t, table.Valid(4))
	assert.False(t, table.Valid(5))
	assert.False(t, table.Valid(-1))
	assert.Equal(t, 5, table.Len())
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#FF6B6B", color.RGBA{0xff, 0x6b, 0x6b, 0xff}, false},
		{"4ecdc4", color.RGBA{0x4e, 0xcd, 0xc4, 0xff}, false},
		{"#FFF", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseHexColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}
}
