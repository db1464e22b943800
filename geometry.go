package annotator

// Shape geometry in pixel space.

import (
	"fmt"
	"math"
)

// Point is a position in pixel coordinates, measured from the top-left corner of the image.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle with corners (X1,Y1) and (X2,Y2), X1 <= X2 and Y1 <= Y2.
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Dx is the rectangle width.
func (r Rect) Dx() float64 {
	return r.X2 - r.X1
}

// Dy is the rectangle height.
func (r Rect) Dy() float64 {
	return r.Y2 - r.Y1
}

// Geometry is the pixel-space payload of an annotation: a Box, Polygon, Circle or Ellipse.
type Geometry interface {
	// Bounds returns the smallest rectangle enclosing the shape.
	Bounds() Rect
	// Contains reports whether (x, y) lies inside the shape or on its boundary.
	Contains(x, y float64) bool
	// Translate returns a copy moved by (dx, dy).
	Translate(dx, dy float64) Geometry
	// Scale returns a copy with all x coordinates multiplied by sx and y coordinates by sy.
	Scale(sx, sy float64) Geometry
	// Clone returns a deep copy.
	Clone() Geometry

	degenerate() bool
}

// Box is an axis-aligned bounding box given by its center and extent.
type Box struct {
	CX, CY float64 // Center.
	W, H   float64 // Width and height.
}

// BoxFromCorners returns the box spanned by two opposite corners, in any order.
func BoxFromCorners(x1, y1, x2, y2 float64) Box {
	return Box{
		CX: (x1 + x2) / 2,
		CY: (y1 + y2) / 2,
		W:  math.Abs(x2 - x1),
		H:  math.Abs(y2 - y1),
	}
}

func boxFromRect(r Rect) Box {
	return BoxFromCorners(r.X1, r.Y1, r.X2, r.Y2)
}

func (b Box) Bounds() Rect {
	return Rect{b.CX - b.W/2, b.CY - b.H/2, b.CX + b.W/2, b.CY + b.H/2}
}

func (b Box) Contains(x, y float64) bool {
	r := b.Bounds()
	return r.X1 <= x && x <= r.X2 && r.Y1 <= y && y <= r.Y2
}

func (b Box) Translate(dx, dy float64) Geometry {
	return Box{b.CX + dx, b.CY + dy, b.W, b.H}
}

func (b Box) Scale(sx, sy float64) Geometry {
	return Box{b.CX * sx, b.CY * sy, b.W * sx, b.H * sy}
}

func (b Box) Clone() Geometry {
	return b
}

func (b Box) degenerate() bool {
	return !(b.W > 0 && b.H > 0)
}

// Polygon is a closed contour. The last point connects back to the first.
type Polygon struct {
	Points []Point
}

func (p Polygon) Bounds() Rect {
	if len(p.Points) == 0 {
		return Rect{}
	}
	r := Rect{p.Points[0].X, p.Points[0].Y, p.Points[0].X, p.Points[0].Y}
	for _, pt := range p.Points[1:] {
		r.X1 = math.Min(r.X1, pt.X)
		r.Y1 = math.Min(r.Y1, pt.Y)
		r.X2 = math.Max(r.X2, pt.X)
		r.Y2 = math.Max(r.Y2, pt.Y)
	}
	return r
}

// Contains uses the even-odd rule. Points on an edge count as inside.
func (p Polygon) Contains(x, y float64) bool {
	n := len(p.Points)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p.Points[j], p.Points[i]
		if distanceToSegment(x, y, a, b) == 0 {
			return true
		}
		if (a.Y > y) != (b.Y > y) && x < (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

func (p Polygon) Translate(dx, dy float64) Geometry {
	q := Polygon{Points: make([]Point, len(p.Points))}
	for i, pt := range p.Points {
		q.Points[i] = Point{pt.X + dx, pt.Y + dy}
	}
	return q
}

func (p Polygon) Scale(sx, sy float64) Geometry {
	q := Polygon{Points: make([]Point, len(p.Points))}
	for i, pt := range p.Points {
		q.Points[i] = Point{pt.X * sx, pt.Y * sy}
	}
	return q
}

func (p Polygon) Clone() Geometry {
	return Polygon{Points: append([]Point(nil), p.Points...)}
}

// Area is the absolute area enclosed by the contour (shoelace formula).
func (p Polygon) Area() float64 {
	var sum float64
	for i, j := 0, len(p.Points)-1; i < len(p.Points); j, i = i, i+1 {
		sum += p.Points[j].X*p.Points[i].Y - p.Points[i].X*p.Points[j].Y
	}
	return math.Abs(sum) / 2
}

func (p Polygon) degenerate() bool {
	return len(p.Points) < 3 || !(p.Area() > 1e-9)
}

// edgeDistance returns the distance from (x, y) to the nearest polygon edge.
func (p Polygon) edgeDistance(x, y float64) float64 {
	d := math.Inf(1)
	for i, j := 0, len(p.Points)-1; i < len(p.Points); j, i = i, i+1 {
		d = math.Min(d, distanceToSegment(x, y, p.Points[j], p.Points[i]))
	}
	return d
}

// Circle is a disc given by center and radius.
type Circle struct {
	Center Point
	Radius float64
}

func (c Circle) Bounds() Rect {
	return Rect{c.Center.X - c.Radius, c.Center.Y - c.Radius, c.Center.X + c.Radius,
		c.Center.Y + c.Radius}
}

func (c Circle) Contains(x, y float64) bool {
	return math.Hypot(x-c.Center.X, y-c.Center.Y) <= c.Radius
}

func (c Circle) Translate(dx, dy float64) Geometry {
	return Circle{Point{c.Center.X + dx, c.Center.Y + dy}, c.Radius}
}

// Scale turns the circle into an Ellipse when sx != sy.
func (c Circle) Scale(sx, sy float64) Geometry {
	center := Point{c.Center.X * sx, c.Center.Y * sy}
	if sx == sy {
		return Circle{center, c.Radius * sx}
	}
	return Ellipse{center, c.Radius * sx, c.Radius * sy}
}

func (c Circle) Clone() Geometry {
	return c
}

func (c Circle) degenerate() bool {
	return !(c.Radius > 0)
}

// Ellipse is an axis-aligned ellipse given by center and the horizontal and vertical radii.
type Ellipse struct {
	Center Point
	RX, RY float64
}

func (e Ellipse) Bounds() Rect {
	return Rect{e.Center.X - e.RX, e.Center.Y - e.RY, e.Center.X + e.RX, e.Center.Y + e.RY}
}

func (e Ellipse) Contains(x, y float64) bool {
	if e.degenerate() {
		return false
	}
	nx := (x - e.Center.X) / e.RX
	ny := (y - e.Center.Y) / e.RY
	return nx*nx+ny*ny <= 1
}

func (e Ellipse) Translate(dx, dy float64) Geometry {
	return Ellipse{Point{e.Center.X + dx, e.Center.Y + dy}, e.RX, e.RY}
}

func (e Ellipse) Scale(sx, sy float64) Geometry {
	return Ellipse{Point{e.Center.X * sx, e.Center.Y * sy}, e.RX * sx, e.RY * sy}
}

func (e Ellipse) Clone() Geometry {
	return e
}

func (e Ellipse) degenerate() bool {
	return !(e.RX > 0 && e.RY > 0)
}

// distanceToSegment returns the distance from (x, y) to the line segment a-b.
func distanceToSegment(x, y float64, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(x-a.X, y-a.Y)
	}
	t := ((x-a.X)*dx + (y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(x-(a.X+t*dx), y-(a.Y+t*dy))
}

// validateGeometry checks that g has positive extent and lies within a width x height image. The
// bounds are the closed range [0,width]x[0,height] of continuous coordinates, so a shape may touch
// the right and bottom border.
func validateGeometry(g Geometry, width, height int) error {
	if g == nil {
		return fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	}
	if g.degenerate() {
		return fmt.Errorf("%w: non-positive extent", ErrInvalidGeometry)
	}

	r := g.Bounds()
	for _, v := range [4]float64{r.X1, r.Y1, r.X2, r.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidGeometry)
		}
	}
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > float64(width) || r.Y2 > float64(height) {
		return fmt.Errorf("%w: (%.1f,%.1f)(%.1f,%.1f) exceeds the %dx%d image", ErrInvalidGeometry,
			r.X1, r.Y1, r.X2, r.Y2, width, height)
	}
	return nil
}

// shiftInside moves g by the smallest offset that brings its bounds within the image. Shapes
// larger than the image are aligned to the top-left corner.
func shiftInside(g Geometry, width, height int) Geometry {
	r := g.Bounds()
	shift := func(lo, hi, max float64) float64 {
		switch {
		case lo < 0:
			return -lo
		case hi > max:
			return math.Max(max-hi, -lo)
		}
		return 0
	}

	dx := shift(r.X1, r.X2, float64(width))
	dy := shift(r.Y1, r.Y2, float64(height))
	if dx == 0 && dy == 0 {
		return g
	}
	return g.Translate(dx, dy)
}

// Handle identifies the part of a shape that is dragged during a resize. The four corner handles
// apply to boxes, circles and ellipses; polygons use VertexHandle.
type Handle int

// Corner handles.
const (
	TopLeft Handle = iota
	TopRight
	BottomLeft
	BottomRight

	firstVertexHandle
)

// VertexHandle returns the handle of polygon vertex i.
func VertexHandle(i int) Handle {
	return firstVertexHandle + Handle(i)
}

func (h Handle) String() string {
	switch h {
	case TopLeft:
		return "top_left"
	case TopRight:
		return "top_right"
	case BottomLeft:
		return "bottom_left"
	case BottomRight:
		return "bottom_right"
	}
	return fmt.Sprintf("vertex_%d", h-firstVertexHandle)
}

// resizeGeometry drags handle h of g by (dx, dy). The result is clamped to the image and extents
// below minExtent are grown back to minExtent.
func resizeGeometry(g Geometry, h Handle, dx, dy float64, width, height int, minExtent float64) (
	Geometry, error) {

	w, ht := float64(width), float64(height)

	if p, ok := g.(Polygon); ok {
		i := int(h - firstVertexHandle)
		if h < firstVertexHandle || i >= len(p.Points) {
			return nil, fmt.Errorf("%w: polygon has no handle %v", ErrInvalidGeometry, h)
		}
		q := p.Clone().(Polygon)
		q.Points[i] = Point{clamp(q.Points[i].X+dx, 0, w), clamp(q.Points[i].Y+dy, 0, ht)}
		if q.degenerate() {
			return nil, fmt.Errorf("%w: polygon collapsed", ErrInvalidGeometry)
		}
		return q, nil
	}

	r := g.Bounds()
	switch h {
	case TopLeft:
		r.X1 += dx
		r.Y1 += dy
	case TopRight:
		r.X2 += dx
		r.Y1 += dy
	case BottomLeft:
		r.X1 += dx
		r.Y2 += dy
	case BottomRight:
		r.X2 += dx
		r.Y2 += dy
	default:
		return nil, fmt.Errorf("%w: %T has no handle %v", ErrInvalidGeometry, g, h)
	}

	// Dragging past the opposite corner flips the rectangle.
	if r.X2 < r.X1 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y2 < r.Y1 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	r.X1, r.X2 = clampSpan(r.X1, r.X2, w, minExtent)
	r.Y1, r.Y2 = clampSpan(r.Y1, r.Y2, ht, minExtent)

	switch g.(type) {
	case Box:
		return boxFromRect(r), nil
	case Circle:
		center := Point{(r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2}
		return Circle{center, math.Min(r.Dx(), r.Dy()) / 2}, nil
	case Ellipse:
		center := Point{(r.X1 + r.X2) / 2, (r.Y1 + r.Y2) / 2}
		return Ellipse{center, r.Dx() / 2, r.Dy() / 2}, nil
	}
	return nil, fmt.Errorf("%w: unsupported geometry %T", ErrInvalidGeometry, g)
}

// clampSpan clamps [lo, hi] to [0, max] and grows it to at least minExtent (or max, if smaller).
func clampSpan(lo, hi, max, minExtent float64) (float64, float64) {
	lo = clamp(lo, 0, max)
	hi = clamp(hi, 0, max)
	minExtent = math.Min(minExtent, max)
	if hi-lo < minExtent {
		if lo+minExtent <= max {
			hi = lo + minExtent
		} else {
			hi = max
			lo = max - minExtent
		}
	}
	return lo, hi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
