package annotator

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFiles() AnnotatedFiles {
	return AnnotatedFiles{
		{
			Image: ImageEntry{Path: "a.png", Width: 100, Height: 100},
			Annotations: []Annotation{
				{ID: "a1", ClassID: 0, Kind: KindBox, Geometry: Box{50, 50, 20, 10}},
				{ID: "a2", ClassID: 1, Kind: KindSolidMask, Geometry: Circle{Point{20, 20}, 10}},
				{ID: "a3", ClassID: 2, Kind: KindBox, Geometry: Box{95, 50, 4, 40}},
			},
		},
		{
			Image: ImageEntry{Path: "b.png", Width: 100, Height: 100},
			Annotations: []Annotation{
				{ID: "b1", ClassID: 1, Kind: KindRingMask, Geometry: Box{50, 50, 60, 30}},
			},
		},
	}
}

func TestMapClasses(t *testing.T) {
	data := testFiles()
	require.NoError(t, data.MapClasses([]string{"0=2", " 1 = 0 "}))
	assert.Equal(t, 2, data[0].Annotations[0].ClassID)
	assert.Equal(t, 0, data[0].Annotations[1].ClassID)
	assert.Equal(t, 2, data[0].Annotations[2].ClassID)
	assert.Equal(t, 0, data[1].Annotations[0].ClassID)

	assert.Error(t, data.MapClasses([]string{"0:1"}))
	assert.Error(t, data.MapClasses([]string{"a=1"}))
	assert.Error(t, data.MapClasses([]string{"-1=1"}))
	assert.NoError(t, data.MapClasses(nil))
}

func TestTransformBoxes(t *testing.T) {
	t.Run("aspect_ratio", func(t *testing.T) {
		data := testFiles()
		data.TransformBoxes(1, 1, 1)
		assert.Equal(t, Geometry(Box{50, 50, 20, 20}), data[0].Annotations[0].Geometry)
		assert.Equal(t, Geometry(Circle{Point{20, 20}, 10}), data[0].Annotations[1].Geometry,
			"mask regions are untouched")
		assert.Equal(t, Geometry(Box{50, 50, 60, 30}), data[1].Annotations[0].Geometry)
	})
	t.Run("scale_and_clamp", func(t *testing.T) {
		data := testFiles()
		data.TransformBoxes(4, 0.5, 0)
		assert.Equal(t, Geometry(Box{50, 50, 80, 5}), data[0].Annotations[0].Geometry)
		assert.Equal(t, Geometry(BoxFromCorners(87, 40, 100, 60)), data[0].Annotations[2].Geometry)
	})
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name      string
		opts      FilterOptions
		wantIDs   []string
		wantFiles int
	}{
		{"none", FilterOptions{}, []string{"a1", "a2", "a3", "b1"}, 2},
		{"classes", FilterOptions{ClassIDs: []int{1}}, []string{"a2", "b1"}, 2},
		{"kinds", FilterOptions{Kinds: []ShapeKind{KindBox}}, []string{"a1", "a3"}, 2},
		{"kinds_require_label", FilterOptions{Kinds: []ShapeKind{KindBox}, RequireLabel: true},
			[]string{"a1", "a3"}, 1},
		{"min_size", FilterOptions{MinWidth: 10, MinHeight: 15}, []string{"a2", "b1"}, 2},
		{"aspect_ratio", FilterOptions{MinAspectRatio: 0.5, MaxAspectRatio: 1.5},
			[]string{"a2"}, 2},
		{"require_label", FilterOptions{ClassIDs: []int{3}, RequireLabel: true}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := testFiles()
			data.Filter(tt.opts)
			assert.Len(t, data, tt.wantFiles)

			var ids []string
			for _, f := range data {
				for _, a := range f.Annotations {
					ids = append(ids, a.ID)
				}
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSplit(t *testing.T) {
	data := make(AnnotatedFiles, 1000)
	rng := rand.New(rand.NewSource(1))

	datasets, err := data.splitWithRand([]int{70, 90, 100}, rng)
	require.NoError(t, err)
	require.Len(t, datasets, 3)
	assert.Equal(t, 1000, len(datasets[0])+len(datasets[1])+len(datasets[2]))
	assert.InDelta(t, 700, len(datasets[0]), 60)
	assert.InDelta(t, 200, len(datasets[1]), 60)
	assert.InDelta(t, 100, len(datasets[2]), 60)

	datasets, err = data.splitWithRand([]int{100}, rng)
	require.NoError(t, err)
	assert.Len(t, datasets[0], 1000)

	_, err = data.Split([]int{50, 90})
	assert.Error(t, err)
}

func TestProcessImages(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0755))

	data := AnnotatedFiles{
		{
			Image: writeTestImage(t, dir, "land.png", 200, 100),
			Annotations: []Annotation{
				{ClassID: 0, Kind: KindBox, Geometry: Box{100, 50, 100, 50}},
			},
		},
		{
			Image: writeTestImage(t, dir, "port.png", 100, 200),
			Annotations: []Annotation{
				{ClassID: 0, Kind: KindSolidMask, Geometry: Circle{Point{50, 100}, 20}},
			},
		},
	}

	opts := ImageOptions{
		OutDir:             outDir,
		LongerSide:         100,
		DownsamplingFilter: "box",
		UpsamplingFilter:   "linear",
		Encoding:           "png",
		JPEGQuality:        90,
	}
	require.NoError(t, data.ProcessImages(opts))

	assert.Equal(t, ImageEntry{Path: filepath.Join(outDir, "land.png"), Width: 100, Height: 50},
		data[0].Image)
	assert.Equal(t, Geometry(Box{50, 25, 50, 25}), data[0].Annotations[0].Geometry)
	assert.Equal(t, 50, data[1].Image.Width)
	assert.Equal(t, 100, data[1].Image.Height)
	assert.Equal(t, Geometry(Circle{Point{25, 50}, 10}), data[1].Annotations[0].Geometry)

	entry, err := newImageEntry(data[0].Image.Path)
	require.NoError(t, err)
	assert.Equal(t, data[0].Image, entry)
}

func TestProcessImagesOptions(t *testing.T) {
	data := testFiles()
	assert.NoError(t, data.ProcessImages(ImageOptions{}), "no resize is a no-op")
	assert.Equal(t, "a.png", data[0].Image.Path)

	opts := ImageOptions{LongerSide: 10, DownsamplingFilter: "bogus", UpsamplingFilter: "linear",
		Encoding: "png"}
	assert.Error(t, data.ProcessImages(opts))

	opts.DownsamplingFilter = "box"
	opts.Encoding = "gif"
	assert.Error(t, data.ProcessImages(opts))
}
