package annotator

import (
	"fmt"

	"github.com/google/uuid"
)

// ShapeKind selects how an annotation is exported.
type ShapeKind int

// The shape kinds.
const (
	KindBox       ShapeKind = iota // YOLO bounding box, exported as a label line.
	KindSolidMask                  // Mask region with filled interior.
	KindRingMask                   // Mask region where only the boundary band is filled.
)

func (k ShapeKind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindSolidMask:
		return "solid"
	case KindRingMask:
		return "ring"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// ParseShapeKind is the inverse of ShapeKind.String.
func ParseShapeKind(s string) (ShapeKind, error) {
	switch s {
	case "box":
		return KindBox, nil
	case "solid":
		return KindSolidMask, nil
	case "ring":
		return KindRingMask, nil
	}
	return 0, fmt.Errorf("unknown shape kind %q", s)
}

// IsMask reports whether the kind is rasterized into the segmentation mask.
func (k ShapeKind) IsMask() bool {
	return k == KindSolidMask || k == KindRingMask
}

// ImageEntry is an image file and its pixel dimensions.
type ImageEntry struct {
	Path   string
	Width  int
	Height int
}

// Annotation is one labelled region on one image.
type Annotation struct {
	ID       string
	ClassID  int
	Kind     ShapeKind
	Geometry Geometry // Pixel coordinates.
}

// clone returns a copy that shares no geometry storage with a.
func (a Annotation) clone() Annotation {
	if a.Geometry != nil {
		a.Geometry = a.Geometry.Clone()
	}
	return a
}

// newAnnotationID returns a short random id.
func newAnnotationID() string {
	return uuid.NewString()[:8]
}

// checkKind verifies that g can be used for an annotation of kind k. Boxes may only carry Box
// geometry, mask regions take any geometry.
func checkKind(k ShapeKind, g Geometry) error {
	switch k {
	case KindBox:
		if _, ok := g.(Box); !ok {
			return fmt.Errorf("%w: %s annotation needs a Box, not %T", ErrInvalidGeometry, k, g)
		}
	case KindSolidMask, KindRingMask:
	default:
		return fmt.Errorf("%w: unknown shape kind %d", ErrInvalidGeometry, int(k))
	}
	return nil
}

// Options are the tunables of an annotation session.
type Options struct {
	Precision       int     // Decimal places of exported label values.
	PasteOffset     float64 // Pixel offset of pasted copies in x and y.
	RingThickness   float64 // Width in pixels of the band filled for ring mask regions.
	MinExtent       float64 // Minimum pixel extent a resize can shrink a shape to.
	MaskClassOffset int     // Added to the class id to get the mask pixel value.
	HistoryLimit    int     // Maximum number of undo steps.
}

// DefaultOptions returns the default session options.
func DefaultOptions() Options {
	return Options{
		Precision:       6,
		PasteOffset:     10,
		RingThickness:   3,
		MinExtent:       5,
		MaskClassOffset: 0,
		HistoryLimit:    50,
	}
}

// withDefaults replaces the fields of o that are out of range by their default values.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Precision <= 0 {
		o.Precision = d.Precision
	}
	if o.RingThickness <= 0 {
		o.RingThickness = d.RingThickness
	}
	if o.MinExtent <= 0 {
		o.MinExtent = d.MinExtent
	}
	if o.PasteOffset < 0 {
		o.PasteOffset = d.PasteOffset
	}
	if o.MaskClassOffset < 0 {
		o.MaskClassOffset = d.MaskClassOffset
	}
	if o.HistoryLimit < 0 {
		o.HistoryLimit = d.HistoryLimit
	}
	return o
}

// Session is the context the annotation store operates in: the current image and class table.
type Session struct {
	Image   ImageEntry
	Classes *ClassTable
	Options Options
}

// NewSession creates a session for img with default options. A nil classes table is replaced
// with DefaultClassTable.
func NewSession(img ImageEntry, classes *ClassTable) *Session {
	if classes == nil {
		classes = DefaultClassTable()
	}
	return &Session{Image: img, Classes: classes, Options: DefaultOptions()}
}
