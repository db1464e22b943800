package annotator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRasterizeMaskSolidAndRing(t *testing.T) {
	opts := DefaultOptions()
	square := BoxFromCorners(10, 10, 40, 40)
	solid := RasterizeMask([]Annotation{{ClassID: 1, Kind: KindSolidMask, Geometry: square}},
		50, 50, opts)
	ring := RasterizeMask([]Annotation{{ClassID: 1, Kind: KindRingMask, Geometry: square}},
		50, 50, opts)

	assert.Equal(t, 30*30, countValue(solid, 1))
	assert.Equal(t, 30*30-24*24, countValue(ring, 1))

	assert.Equal(t, uint8(1), solid.GrayAt(25, 25).Y)
	assert.Equal(t, uint8(0), ring.GrayAt(25, 25).Y, "ring interior stays background")
	assert.Equal(t, uint8(1), ring.GrayAt(11, 25).Y)
	assert.Equal(t, uint8(0), ring.GrayAt(9, 25).Y)
}

func TestRasterizeMaskShapes(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		name    string
		g       Geometry
		inside  [][2]int
		outside [][2]int
	}{
		{"circle", Circle{Point{50, 50}, 20},
			[][2]int{{50, 50}, {65, 50}, {50, 35}},
			[][2]int{{50, 75}, {66, 66}}},
		{"ellipse", Ellipse{Point{50, 50}, 40, 10},
			[][2]int{{15, 50}, {50, 45}},
			[][2]int{{50, 35}, {95, 50}}},
		{"triangle", Polygon{Points: []Point{{10, 10}, {90, 10}, {10, 90}}},
			[][2]int{{20, 20}, {60, 20}, {20, 60}},
			[][2]int{{60, 60}, {85, 85}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := RasterizeMask([]Annotation{{ClassID: 4, Kind: KindSolidMask, Geometry: tt.g}},
				100, 100, opts)
			for _, p := range tt.inside {
				assert.Equal(t, uint8(4), m.GrayAt(p[0], p[1]).Y, "pixel %v", p)
			}
			for _, p := range tt.outside {
				assert.Equal(t, uint8(0), m.GrayAt(p[0], p[1]).Y, "pixel %v", p)
			}
		})
	}
}

func TestRasterizeMaskPolygonRing(t *testing.T) {
	opts := DefaultOptions()
	square := Polygon{Points: []Point{{10, 10}, {40, 10}, {40, 40}, {10, 40}}}
	m := RasterizeMask([]Annotation{{ClassID: 1, Kind: KindRingMask, Geometry: square}},
		50, 50, opts)

	assert.Equal(t, 30*30-24*24, countValue(m, 1))
	assert.Equal(t, uint8(1), m.GrayAt(12, 25).Y)
	assert.Equal(t, uint8(0), m.GrayAt(25, 25).Y)
}

func TestRasterizeMaskOrder(t *testing.T) {
	opts := DefaultOptions()
	regions := []Annotation{
		{ClassID: 1, Kind: KindSolidMask, Geometry: BoxFromCorners(0, 0, 20, 20)},
		{ClassID: 2, Kind: KindBox, Geometry: BoxFromCorners(0, 0, 20, 20)},
		{ClassID: 3, Kind: KindSolidMask, Geometry: BoxFromCorners(10, 10, 20, 20)},
	}
	m := RasterizeMask(regions, 20, 20, opts)
	assert.Equal(t, uint8(1), m.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(3), m.GrayAt(15, 15).Y, "later regions are on top")
	assert.Equal(t, 300, countValue(m, 1))
	assert.Equal(t, 100, countValue(m, 3))
}

func TestRasterizeMaskClassValues(t *testing.T) {
	regions := []Annotation{
		{ClassID: 2, Kind: KindSolidMask, Geometry: BoxFromCorners(0, 0, 10, 10)},
		{ClassID: 0, Kind: KindSolidMask, Geometry: BoxFromCorners(10, 0, 20, 10)},
	}

	// By default the pixel value is the class id and class 0 coincides with the background.
	opts := DefaultOptions()
	m := RasterizeMask(regions, 20, 10, opts)
	assert.Equal(t, uint8(2), m.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(0), m.GrayAt(15, 5).Y)
	assert.Equal(t, 100, countValue(m, 2))

	opts.MaskClassOffset = 1
	m = RasterizeMask(regions, 20, 10, opts)
	assert.Equal(t, uint8(3), m.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(1), m.GrayAt(15, 5).Y)
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, uint8(0), maskValue(0, 0))
	assert.Equal(t, uint8(1), maskValue(0, 1))
	assert.Equal(t, uint8(7), maskValue(7, 0))
	assert.Equal(t, uint8(255), maskValue(300, 1))
}

func TestWriteReadMask(t *testing.T) {
	dir := t.TempDir()
	m := RasterizeMask([]Annotation{
		{ClassID: 3, Kind: KindRingMask, Geometry: Circle{Point{32, 32}, 20}},
	}, 64, 48, DefaultOptions())

	path := filepath.Join(dir, "mask.png")
	require.NoError(t, WriteMask(path, m))
	got, err := ReadMask(path)
	require.NoError(t, err)
	assert.Equal(t, m.Bounds(), got.Bounds())
	assert.Equal(t, m.Pix, got.Pix)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	assert.Error(t, WriteMask(path, nil))
	_, err = ReadMask(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestWriteMasks(t *testing.T) {
	dir := t.TempDir()
	data := []AnnotatedFile{
		{
			Image: ImageEntry{Path: "/images/a.jpg", Width: 30, Height: 20},
			Annotations: []Annotation{
				{ClassID: 1, Kind: KindSolidMask, Geometry: BoxFromCorners(0, 0, 10, 10)},
			},
		},
		{
			Image: ImageEntry{Path: "/images/b.jpg", Width: 30, Height: 20},
			Annotations: []Annotation{
				{ClassID: 0, Kind: KindBox, Geometry: BoxFromCorners(0, 0, 10, 10)},
			},
		},
	}
	require.NoError(t, WriteMasks(dir, data, DefaultOptions()))

	m, err := ReadMask(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, 100, countValue(m, 1))
	_, err = os.Stat(filepath.Join(dir, "b.png"))
	assert.True(t, os.IsNotExist(err))
}
