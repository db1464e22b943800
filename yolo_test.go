package annotator

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatYOLOLine(t *testing.T) {
	assert.Equal(t, "0 0.500000 0.500000 0.156250 0.104167",
		FormatYOLOLine(0, Box{320, 240, 100, 50}, 640, 480, 6))
	assert.Equal(t, "2 0.50 0.50 0.16 0.10", FormatYOLOLine(2, Box{320, 240, 100, 50}, 640, 480, 2))

	// Rounding noise beyond the image edge is clamped.
	assert.Equal(t, "1 0.500000 0.500000 1.000000 1.000000",
		FormatYOLOLine(1, Box{320.0001, 240, 640.0002, 480}, 640, 480, 6))

	// Rounding must not push a box touching the border past it.
	assert.Equal(t, "0 0.9930 0.3125 0.0140 0.2083",
		FormatYOLOLine(0, BoxFromCorners(631, 100, 640, 200), 640, 480, 4))
	assert.Equal(t, "0 0.1 0.5 0.1 1.0", FormatYOLOLine(0, BoxFromCorners(0, 0, 2, 480), 640, 480, 1))
}

func TestYOLOLowPrecisionRoundTrip(t *testing.T) {
	boxes := []Box{
		BoxFromCorners(631, 100, 640, 200),
		BoxFromCorners(0, 0, 9, 479),
		BoxFromCorners(0, 0, 640, 480),
		BoxFromCorners(600.5, 450.25, 640, 480),
		BoxFromCorners(639, 479, 640, 480),
	}
	for precision := 1; precision <= 6; precision++ {
		for _, b := range boxes {
			line := FormatYOLOLine(0, b, 640, 480, precision)
			got, err := ParseYOLOLine(line, 640, 480, nil)
			require.NoError(t, err, "precision %d, line %q", precision, line)

			r := got.Box.Bounds()
			assert.True(t, r.X1 >= 0 && r.Y1 >= 0 && r.X2 <= 640 && r.Y2 <= 480, "line %q", line)
			tol := math.Pow(10, -float64(precision))
			assert.InDelta(t, b.CX/640, got.Box.CX/640, tol, "line %q", line)
			assert.InDelta(t, b.CY/480, got.Box.CY/480, tol, "line %q", line)
		}
	}
}

func TestParseYOLOLine(t *testing.T) {
	classes := DefaultClassTable()
	tests := []struct {
		name string
		line string
		want YOLOBox
		ok   bool
	}{
		{"valid", "0 0.500000 0.500000 0.156250 0.104167",
			YOLOBox{0, BoxFromCorners(270, 215, 370, 265)}, true},
		{"extra_whitespace", "  3\t0.5 0.5  1 1 ", YOLOBox{3, Box{320, 240, 640, 480}}, true},
		{"three_fields", "0 0.5 0.5", YOLOBox{}, false},
		{"six_fields", "0 0.5 0.5 0.1 0.1 0.9", YOLOBox{}, false},
		{"non_numeric", "0 0.5 abc 0.1 0.1", YOLOBox{}, false},
		{"float_class", "1.0 0.5 0.5 0.1 0.1", YOLOBox{}, false},
		{"negative_class", "-1 0.5 0.5 0.1 0.1", YOLOBox{}, false},
		{"unknown_class", "4 0.5 0.5 0.1 0.1", YOLOBox{}, false},
		{"value_above_one", "0 1.5 0.5 0.1 0.1", YOLOBox{}, false},
		{"negative_value", "0 0.5 0.5 -0.1 0.1", YOLOBox{}, false},
		{"zero_width", "0 0.5 0.5 0 0.1", YOLOBox{}, false},
		{"nan", "0 NaN 0.5 0.1 0.1", YOLOBox{}, false},
		{"exceeds_image", "0 0.95 0.5 0.2 0.1", YOLOBox{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseYOLOLine(tt.line, 640, 480, classes)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrMalformedLine)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.ClassID, got.ClassID)
			assert.InDelta(t, tt.want.Box.CX, got.Box.CX, 1e-6)
			assert.InDelta(t, tt.want.Box.CY, got.Box.CY, 1e-6)
			assert.InDelta(t, tt.want.Box.W, got.Box.W, 1e-3)
			assert.InDelta(t, tt.want.Box.H, got.Box.H, 1e-3)
		})
	}
}

func TestParseYOLOLineWithoutClassTable(t *testing.T) {
	got, err := ParseYOLOLine("17 0.5 0.5 0.5 0.5", 100, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, 17, got.ClassID)
}

func TestParseYOLOLines(t *testing.T) {
	_, err := ParseYOLOLines([]string{"0 0.5 0.5 0.1 0.1"}, 0, 480, nil)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	boxes, err := ParseYOLOLines([]string{"", "0 0.5 0.5 0.1 0.1", "", "1 0.2 0.2 0.1 0.1"},
		640, 480, nil)
	require.NoError(t, err)
	assert.Len(t, boxes, 2)

	_, err = ParseYOLOLines([]string{"0 0.5 0.5 0.1 0.1", "", "x"}, 640, 480, nil)
	var le *LineError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 3, le.Line)
	assert.Equal(t, "x", le.Text)
}

func TestYOLOFiles(t *testing.T) {
	dir := t.TempDir()
	imageDir := filepath.Join(dir, "images")
	labelDir := filepath.Join(dir, "labels")
	outDir := filepath.Join(dir, "out")
	for _, d := range []string{imageDir, labelDir, outDir} {
		require.NoError(t, os.Mkdir(d, 0755))
	}

	writeTestImage(t, imageDir, "a.png", 200, 100)
	writeTestImage(t, imageDir, "b.jpg", 50, 50)
	writeTestImage(t, imageDir, "c.png", 50, 50)
	require.NoError(t, WriteYOLOFile(filepath.Join(labelDir, "a.txt"),
		[]string{"0 0.5 0.5 0.5 0.5", "3 0.1 0.1 0.1 0.1"}))
	require.NoError(t, WriteYOLOFile(filepath.Join(labelDir, "b.txt"), []string{"0 0.5"}))
	require.NoError(t, WriteYOLOFile(filepath.Join(labelDir, "orphan.txt"), nil))

	classes := DefaultClassTable()
	data, err := FromYOLO(labelDir, imageDir, classes)
	require.NoError(t, err)
	require.Len(t, data, 1, "malformed and orphaned label files are skipped")
	assert.Equal(t, 200, data[0].Image.Width)
	require.Len(t, data[0].Annotations, 2)
	assert.Equal(t, Geometry(Box{100, 50, 100, 50}), data[0].Annotations[0].Geometry)

	require.NoError(t, WriteYOLO(outDir, data, classes, 6))
	lines, err := readLines(filepath.Join(outDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0 0.500000 0.500000 0.500000 0.500000",
		"3 0.100000 0.100000 0.100000 0.100000",
	}, lines)

	read, err := ReadYOLOClasses(filepath.Join(outDir, YOLOClassesFile))
	require.NoError(t, err)
	assert.Equal(t, classes.Names(), read.Names())

	assert.Error(t, WriteYOLO(filepath.Join(dir, "missing"), data, classes, 6))
}

func TestReadYOLOFileMissing(t *testing.T) {
	_, err := ReadYOLOFile(filepath.Join(t.TempDir(), "none.txt"),
		ImageEntry{Width: 10, Height: 10}, nil)
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
