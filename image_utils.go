package annotator

import (
	"image"
	_ "image/gif" // Register decoders for image.DecodeConfig.
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// resizeImage resamples the image to match the longer and shorter sides (one may be 0).
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsamplingFilter, upsamplingFilter imaging.ResampleFilter) (
	resized image.Image, scaleWidth, scaleHeight float64) {

	imgBounds := img.Bounds()
	imgWidth := imgBounds.Dx()
	imgHeight := imgBounds.Dy()

	imgLonger := imgWidth
	imgShorter := imgHeight
	isLandscape := true
	if imgHeight > imgWidth {
		imgLonger = imgHeight
		imgShorter = imgWidth
		isLandscape = false
	}

	// Calculate the target dimensions.
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * (float64(imgLonger) / float64(imgShorter))))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) * (float64(imgShorter) / float64(imgLonger))))
	}

	// Select the filter based on the direction of the rescaling operation.
	var filter imaging.ResampleFilter
	if longerSide*shorterSide < imgWidth*imgHeight {
		filter = downsamplingFilter
	} else {
		filter = upsamplingFilter
	}

	if isLandscape {
		resized = imaging.Resize(img, longerSide, shorterSide, filter)
		scaleWidth = float64(longerSide) / float64(imgLonger)
		scaleHeight = float64(shorterSide) / float64(imgShorter)
	} else { // Portrait.
		resized = imaging.Resize(img, shorterSide, longerSide, filter)
		scaleWidth = float64(shorterSide) / float64(imgShorter)
		scaleHeight = float64(longerSide) / float64(imgLonger)
	}

	return resized, scaleWidth, scaleHeight
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// newImageEntry reads the dimensions of the image at path.
func newImageEntry(path string) (ImageEntry, error) {
	cfg, _, err := decodeImageConfig(path)
	if err != nil {
		return ImageEntry{}, ioFailure("decode", path, err)
	}
	return ImageEntry{Path: path, Width: cfg.Width, Height: cfg.Height}, nil
}

// loadImage reads and decodes the image at path.
func loadImage(path string) (image.Image, error) {
	return imaging.Open(path)
}

// saveImage atomically writes img to path, encoded according to the file extension of path.
func saveImage(path string, img image.Image, jpegQuality int) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error {
		return imaging.Encode(w, img, format, imaging.JPEGQuality(jpegQuality))
	})
}
