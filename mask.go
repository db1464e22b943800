package annotator

// Segmentation masks: single-channel images of the source image size where each pixel holds the
// class of the topmost mask region covering it and 0 marks the background.

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/vector"
)

// MaskExt is the file extension of written masks. Masks must be lossless.
const MaskExt = ".png"

// coverageThreshold is the anti-aliased coverage from which a pixel belongs to a region.
const coverageThreshold = 0x80

// bezierArc is the cubic Bézier control point distance approximating a quarter ellipse.
const bezierArc = 0.5522847498

// RasterizeMask paints the mask regions in order onto a width x height mask, so that later regions
// cover earlier ones. Solid regions fill their interior, ring regions only the band of
// opts.RingThickness pixels inside their boundary. Non-mask annotations are ignored.
func RasterizeMask(regions []Annotation, width, height int, opts Options) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, width, height))
	coverage := image.NewAlpha(mask.Bounds())
	z := vector.NewRasterizer(width, height)

	for _, a := range regions {
		if !a.Kind.IsMask() || a.Geometry == nil {
			continue
		}
		value := maskValue(a.ClassID, opts.MaskClassOffset)
		ring := a.Kind == KindRingMask

		// Rasterize the shape (or, for rings of regular shapes, the band) into coverage.
		clear(coverage.Pix)
		z.Reset(width, height)
		tracePath(z, a.Geometry, ring, opts.RingThickness)
		z.Draw(coverage, coverage.Bounds(), image.Opaque, image.Point{})

		poly, isPoly := a.Geometry.(Polygon)
		r := pixelBounds(a.Geometry.Bounds(), mask.Bounds())
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if coverage.AlphaAt(x, y).A < coverageThreshold {
					continue
				}
				if ring && isPoly && poly.edgeDistance(float64(x)+0.5, float64(y)+0.5) >= opts.RingThickness {
					continue
				}
				mask.Pix[mask.PixOffset(x, y)] = value
			}
		}
	}

	return mask
}

// tracePath adds the outline of g to z. For rings of boxes, circles and ellipses the inner outline,
// inset by thickness, is added in reverse so that it cuts a hole. Polygon rings are traced solid
// and trimmed by edge distance.
func tracePath(z *vector.Rasterizer, g Geometry, ring bool, thickness float64) {
	switch g := g.(type) {
	case Box:
		r := g.Bounds()
		traceRect(z, r, false)
		if ring && r.Dx() > 2*thickness && r.Dy() > 2*thickness {
			traceRect(z, Rect{r.X1 + thickness, r.Y1 + thickness, r.X2 - thickness, r.Y2 - thickness},
				true)
		}
	case Circle:
		traceEllipse(z, g.Center, g.Radius, g.Radius, false)
		if ring && g.Radius > thickness {
			traceEllipse(z, g.Center, g.Radius-thickness, g.Radius-thickness, true)
		}
	case Ellipse:
		traceEllipse(z, g.Center, g.RX, g.RY, false)
		if ring && g.RX > thickness && g.RY > thickness {
			traceEllipse(z, g.Center, g.RX-thickness, g.RY-thickness, true)
		}
	case Polygon:
		if len(g.Points) < 3 {
			return
		}
		z.MoveTo(float32(g.Points[0].X), float32(g.Points[0].Y))
		for _, p := range g.Points[1:] {
			z.LineTo(float32(p.X), float32(p.Y))
		}
		z.ClosePath()
	}
}

func traceRect(z *vector.Rasterizer, r Rect, reverse bool) {
	corners := [4]Point{{r.X1, r.Y1}, {r.X2, r.Y1}, {r.X2, r.Y2}, {r.X1, r.Y2}}
	if reverse {
		corners[1], corners[3] = corners[3], corners[1]
	}
	z.MoveTo(float32(corners[0].X), float32(corners[0].Y))
	for _, c := range corners[1:] {
		z.LineTo(float32(c.X), float32(c.Y))
	}
	z.ClosePath()
}

// traceEllipse approximates the ellipse with four cubic Bézier arcs. Mirroring the vertical radius
// reverses the winding direction.
func traceEllipse(z *vector.Rasterizer, c Point, rx, ry float64, reverse bool) {
	if reverse {
		ry = -ry
	}
	kx, ky := bezierArc*rx, bezierArc*ry
	f := func(v float64) float32 { return float32(v) }

	z.MoveTo(f(c.X+rx), f(c.Y))
	z.CubeTo(f(c.X+rx), f(c.Y+ky), f(c.X+kx), f(c.Y+ry), f(c.X), f(c.Y+ry))
	z.CubeTo(f(c.X-kx), f(c.Y+ry), f(c.X-rx), f(c.Y+ky), f(c.X-rx), f(c.Y))
	z.CubeTo(f(c.X-rx), f(c.Y-ky), f(c.X-kx), f(c.Y-ry), f(c.X), f(c.Y-ry))
	z.CubeTo(f(c.X+kx), f(c.Y-ry), f(c.X+rx), f(c.Y-ky), f(c.X+rx), f(c.Y))
	z.ClosePath()
}

// pixelBounds returns the pixels touched by r, limited to bounds.
func pixelBounds(r Rect, bounds image.Rectangle) image.Rectangle {
	return image.Rect(int(math.Floor(r.X1)), int(math.Floor(r.Y1)), int(math.Ceil(r.X2)),
		int(math.Ceil(r.Y2))).Intersect(bounds)
}

// maskValue is the pixel value for classID, saturated to the uint8 range.
func maskValue(classID, offset int) uint8 {
	v := classID + offset
	if v > math.MaxUint8 {
		return math.MaxUint8
	}
	if v < 1 {
		return 0
	}
	return uint8(v)
}

// maskPath returns the mask file path in maskDir for the image at imagePath.
func maskPath(maskDir, imagePath string) string {
	base := filepath.Base(imagePath)
	return filepath.Join(maskDir, strings.TrimSuffix(base, filepath.Ext(base))+MaskExt)
}

// WriteMask atomically writes the mask to path as a single-channel PNG.
func WriteMask(path string, mask *image.Gray) error {
	if mask == nil {
		return fmt.Errorf("no mask to write to %q", path)
	}
	return writeAtomic(path, func(w io.Writer) error {
		return imaging.Encode(w, mask, imaging.PNG)
	})
}

// ReadMask reads a mask written by WriteMask. Masks in other color models are converted to gray.
func ReadMask(path string) (*image.Gray, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, ioFailure("read", path, err)
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}

	// Gray values survive the luminance conversion unchanged.
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g, nil
}

// WriteMasks rasterizes the mask regions of each element of data to one mask per image in dirPath.
// Images without mask regions are skipped.
func WriteMasks(dirPath string, data []AnnotatedFile, opts Options) error {
	written := 0
	for _, fileData := range data {
		var regions []Annotation
		for _, a := range fileData.Annotations {
			if a.Kind.IsMask() {
				regions = append(regions, a)
			}
		}
		if len(regions) == 0 {
			continue
		}

		mask := RasterizeMask(regions, fileData.Image.Width, fileData.Image.Height, opts)
		if err := WriteMask(maskPath(dirPath, fileData.Image.Path), mask); err != nil {
			return err
		}
		written++
	}

	log.WithField("dir", dirPath).Printf("Wrote %d masks", written)
	return nil
}
