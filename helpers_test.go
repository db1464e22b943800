package annotator

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// writeTestImage writes a uniformly gray width x height image to dir/name and returns its entry.
func writeTestImage(t *testing.T, dir, name string, width, height int) ImageEntry {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return ImageEntry{Path: path, Width: width, Height: height}
}

func newTestStore(width, height int) *Store {
	return NewStore(NewSession(ImageEntry{Path: "img.png", Width: width, Height: height}, nil))
}

// countValue returns the number of mask pixels equal to v.
func countValue(m *image.Gray, v uint8) int {
	n := 0
	for _, p := range m.Pix {
		if p == v {
			n++
		}
	}
	return n
}
