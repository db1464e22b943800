package annotator

// Batch operations on the annotations of many images, used when converting and preparing
// datasets.

import (
	"fmt"
	"image"
	"math"
	"math/rand"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// AnnotatedFile is an image together with its annotations.
type AnnotatedFile struct {
	Image       ImageEntry
	Annotations []Annotation
}

// scaleCoords scales all annotation geometry and the image size by the given scale factors.
func (f *AnnotatedFile) scaleCoords(scaleX, scaleY float64, width, height int) {
	for i := range f.Annotations {
		f.Annotations[i].Geometry = f.Annotations[i].Geometry.Scale(scaleX, scaleY)
	}
	f.Image.Width = width
	f.Image.Height = height
}

// AnnotatedFiles is the annotation data for a list of images.
type AnnotatedFiles []AnnotatedFile

// MapClasses replaces class ids, as specified in mappings.
//
// The format of mappings is old=new, with both sides integer class ids.
func (data AnnotatedFiles) MapClasses(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	replacements := make(map[int]int, len(mappings))
	for _, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 {
			return fmt.Errorf("invalid mapping: %v", v)
		}
		from, err1 := strconv.Atoi(strings.TrimSpace(a[0]))
		to, err2 := strconv.Atoi(strings.TrimSpace(a[1]))
		if err1 != nil || err2 != nil || from < 0 || to < 0 {
			return fmt.Errorf("invalid mapping: %v", v)
		}
		replacements[from] = to
	}

	count := 0
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]
			if to, ok := replacements[a.ClassID]; ok && to != a.ClassID {
				a.ClassID = to
				count++
			}
		}
	}

	log.Printf("The class mappings changed %d annotations", count)
	return nil
}

// TransformBoxes transforms the geometry of box annotations.
//
// First boxes are scaled around their center by the horizontal and vertical scale factors scaleX
// and scaleY.
//
// Next, the box is grown (never shrunk) to match the desired aspect ratio. An aspectRatio of zero
// disables this transformation.
//
// Finally the box is clamped to the image.
func (data AnnotatedFiles) TransformBoxes(scaleX, scaleY, aspectRatio float64) {
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]
			b, ok := a.Geometry.(Box)
			if !ok || a.Kind != KindBox {
				continue
			}

			// Scale.
			b.W *= scaleX
			b.H *= scaleY

			// Grow to match desired aspect ratio.
			if aspectRatio > 0 {
				// Calculate the ratio so that the expansion works even if one of width or height is zero.
				var ratio float64
				if b.H != 0 {
					ratio = b.W / b.H
				} else {
					ratio = math.MaxFloat64
				}

				if ratio < aspectRatio {
					b.W = b.H * aspectRatio
				} else if ratio > aspectRatio {
					b.H = b.W / aspectRatio
				}
			}

			r := b.Bounds()
			w, h := float64(f.Image.Width), float64(f.Image.Height)
			a.Geometry = BoxFromCorners(clamp(r.X1, 0, w), clamp(r.Y1, 0, h), clamp(r.X2, 0, w),
				clamp(r.Y2, 0, h))
		}
	}
}

// FilterOptions selects the annotations kept by Filter. Zero values disable the respective filter.
type FilterOptions struct {
	ClassIDs       []int   // Classes to keep.
	Kinds          []ShapeKind
	MinWidth       float64 // Minimum bounding width in pixels.
	MinHeight      float64 // Minimum bounding height in pixels.
	MinAspectRatio float64 // Minimum bounding width/height.
	MaxAspectRatio float64 // Maximum bounding width/height.
	RequireLabel   bool    // Drop images left without annotations.
}

// Filter removes the annotations not matching opts. Size and aspect ratio apply to the bounding
// rectangle of each shape.
func (data *AnnotatedFiles) Filter(opts FilterOptions) {
	keepAnnotation := func(a Annotation) bool {
		if len(opts.ClassIDs) > 0 && !contains(opts.ClassIDs, a.ClassID) {
			return false
		}
		if len(opts.Kinds) > 0 && !contains(opts.Kinds, a.Kind) {
			return false
		}

		r := a.Geometry.Bounds()
		width, height := r.Dx(), r.Dy()
		if opts.MinWidth > width || opts.MinHeight > height {
			return false
		}

		if opts.MinAspectRatio != 0 || opts.MaxAspectRatio != 0 {
			if height == 0 {
				return false
			}
			ratio := width / height
			return (opts.MinAspectRatio == 0 || ratio >= opts.MinAspectRatio) &&
				(opts.MaxAspectRatio == 0 || ratio <= opts.MaxAspectRatio)
		}
		return true
	}

	numFiles := len(*data)
	numBefore, numAfter := 0, 0

	kept := (*data)[:0]
	for _, f := range *data {
		numBefore += len(f.Annotations)

		annotations := f.Annotations[:0]
		for _, a := range f.Annotations {
			if keepAnnotation(a) {
				annotations = append(annotations, a)
			}
		}
		f.Annotations = annotations
		numAfter += len(annotations)

		if opts.RequireLabel && len(annotations) == 0 {
			continue
		}
		kept = append(kept, f)
	}
	*data = kept

	log.Printf("Filtered out %d annotations and %d files", numBefore-numAfter, numFiles-len(*data))
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// ImageOptions configures ProcessImages.
type ImageOptions struct {
	OutDir             string
	LongerSide         int    // Target length of the longer side, 0 to keep the aspect ratio.
	ShorterSide        int    // Target length of the shorter side, 0 to keep the aspect ratio.
	DownsamplingFilter string // One of nearest, box, linear, gaussian, lanczos.
	UpsamplingFilter   string
	Encoding           string // jpg or png.
	JPEGQuality        int
}

// resampleFilter maps a filter name to the imaging filter.
func resampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// ProcessImages resizes all referenced images and writes them to opts.OutDir using the specified
// encoding. Image paths, sizes and annotation geometry are updated to match.
func (data AnnotatedFiles) ProcessImages(opts ImageOptions) error {
	if opts.LongerSide <= 0 && opts.ShorterSide <= 0 {
		return nil
	}
	log.Print("Processing images")

	downsample, err := resampleFilter(opts.DownsamplingFilter)
	if err != nil {
		return err
	}
	upsample, err := resampleFilter(opts.UpsamplingFilter)
	if err != nil {
		return err
	}

	// Select the output file extension based on the requested encoding.
	var fileExt string
	switch strings.ToLower(opts.Encoding) {
	case "jpg", "jpeg":
		fileExt = ".jpg"
	case "png":
		fileExt = ".png"
	default:
		return fmt.Errorf("unsupported output encoding %q", opts.Encoding)
	}

	// Limit the number of goroutines in flight, as they load potentially large images into memory.
	numTasks := 2 * runtime.NumCPU()
	if len(data) < numTasks {
		numTasks = len(data)
	}
	workQueue := make(chan *AnnotatedFile, 2*numTasks)
	errors := make(chan error, 1)
	var wg sync.WaitGroup

	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for d := range workQueue {
				if err := processImage(d, opts, fileExt, downsample, upsample); err != nil {
					select {
					case errors <- err:
					default:
					}
				}
			}
		}()
	}

	for i := range data {
		workQueue <- &data[i]
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if len(errors) > 0 {
		return <-errors
	}
	return nil
}

// processImage resizes and saves the image described by data and rescales its annotations.
func processImage(data *AnnotatedFile, opts ImageOptions, fileExt string,
	downsample, upsample imaging.ResampleFilter) error {

	img, err := loadImage(data.Image.Path)
	if err != nil {
		return ioFailure("read", data.Image.Path, err)
	}

	var resized image.Image
	var scaleX, scaleY float64
	resized, scaleX, scaleY = resizeImage(img, opts.LongerSide, opts.ShorterSide, downsample,
		upsample)

	inName := filepath.Base(data.Image.Path)
	outName := strings.TrimSuffix(inName, filepath.Ext(inName)) + fileExt
	outPath := filepath.Join(opts.OutDir, outName)
	if err := saveImage(outPath, resized, opts.JPEGQuality); err != nil {
		return err
	}

	data.Image.Path = outPath
	data.scaleCoords(scaleX, scaleY, resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}

// Split randomly splits the data into multiple datasets.
//
// The cumulativeSplits specify the cumulative distribution according to which the data is split
// into the returned datasets. Its last value must be 100.
func (data AnnotatedFiles) Split(cumulativeSplits []int) ([]AnnotatedFiles, error) {
	return data.splitWithRand(cumulativeSplits, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func (data AnnotatedFiles) splitWithRand(cumulativeSplits []int, rng *rand.Rand) (
	[]AnnotatedFiles, error) {

	datasets := make([]AnnotatedFiles, len(cumulativeSplits))

	// Allocate slightly more than the expected size for each dataset.
	var sum int
	for i, s := range cumulativeSplits {
		percent := s - sum
		datasets[i] = make(AnnotatedFiles, 0, int(1.05*float64(percent)/100*float64(len(data))))
		sum = s
	}
	if sum != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

outer:
	for _, d := range data {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				datasets[i] = append(datasets[i], d)
				continue outer
			}
		}
	}

	return datasets, nil
}
