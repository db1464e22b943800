package annotator

// The annotation store holds the annotations of the current image and is the command interface
// invoked by the UI layer.

import (
	"fmt"
	"image"
)

// Store owns the annotations of the image in its session. Annotations are kept in drawing order,
// the last one being topmost.
//
// A Store is driven by a single goroutine and is not safe for concurrent use.
type Store struct {
	session     *Session
	annotations []Annotation
	clipboard   *Annotation
	undo        [][]Annotation
	redo        [][]Annotation
	version     int // Incremented on every change.
}

// Export is the result of exporting the annotations of one image.
type Export struct {
	Lines []string    // One YOLO line per box annotation.
	Mask  *image.Gray // The segmentation mask, nil when there are no mask regions.
}

// NewStore creates an empty store for the session.
func NewStore(session *Session) *Store {
	return &Store{session: session}
}

// Session returns the store's session.
func (s *Store) Session() *Session {
	return s.session
}

// Reset discards all annotations and the undo history and switches to session. The clipboard is
// kept so that shapes can be pasted across images.
func (s *Store) Reset(session *Session) {
	s.session = session
	s.annotations = nil
	s.undo = nil
	s.redo = nil
	s.version++
}

// Version identifies the current state of the annotations. It changes with every modification,
// including Undo and Redo.
func (s *Store) Version() int {
	return s.version
}

// Len is the number of annotations.
func (s *Store) Len() int {
	return len(s.annotations)
}

// Annotations returns a copy of the annotations in drawing order.
func (s *Store) Annotations() []Annotation {
	return cloneAnnotations(s.annotations)
}

// Get returns the annotation with the given id.
func (s *Store) Get(id string) (Annotation, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.annotations[i].clone(), true
	}
	return Annotation{}, false
}

// Add validates and appends a new annotation on top of the existing ones.
func (s *Store) Add(kind ShapeKind, g Geometry, classID int) (Annotation, error) {
	if err := s.validate(kind, g, classID); err != nil {
		return Annotation{}, err
	}

	a := Annotation{ID: newAnnotationID(), ClassID: classID, Kind: kind, Geometry: g.Clone()}
	s.checkpoint()
	s.annotations = append(s.annotations, a)
	return a.clone(), nil
}

// Remove deletes the annotation with the given id. Unknown ids are ignored.
func (s *Store) Remove(id string) {
	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.checkpoint()
	s.annotations = append(s.annotations[:i], s.annotations[i+1:]...)
}

// UpdateGeometry replaces the geometry of an annotation, with the same validation as Add.
func (s *Store) UpdateGeometry(id string, g Geometry) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	a := &s.annotations[i]
	if err := s.validate(a.Kind, g, a.ClassID); err != nil {
		return err
	}

	s.checkpoint()
	a.Geometry = g.Clone()
	return nil
}

// Resize drags handle h of an annotation by (dx, dy) pixels. The result is clamped to the image
// instead of failing when it would leave it.
func (s *Store) Resize(id string, h Handle, dx, dy float64) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	img := s.session.Image
	g, err := resizeGeometry(s.annotations[i].Geometry, h, dx, dy, img.Width, img.Height,
		s.session.Options.MinExtent)
	if err != nil {
		return err
	}
	return s.UpdateGeometry(id, g)
}

// Move translates an annotation by (dx, dy) pixels, stopping at the image border.
func (s *Store) Move(id string, dx, dy float64) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	img := s.session.Image
	g := shiftInside(s.annotations[i].Geometry.Translate(dx, dy), img.Width, img.Height)
	return s.UpdateGeometry(id, g)
}

// SetClass changes the class of an annotation.
func (s *Store) SetClass(id string, classID int) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !s.session.Classes.Valid(classID) {
		return fmt.Errorf("%w: %d", ErrUnknownClass, classID)
	}
	s.checkpoint()
	s.annotations[i].ClassID = classID
	return nil
}

// Copy places a copy of the annotation on the clipboard.
func (s *Store) Copy(id string) error {
	a, found := s.Get(id)
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.clipboard = &a
	return nil
}

// Paste adds the clipboard annotation, offset by Options.PasteOffset and kept inside the image.
func (s *Store) Paste() (Annotation, error) {
	if s.clipboard == nil {
		return Annotation{}, fmt.Errorf("%w: clipboard is empty", ErrNotFound)
	}
	img := s.session.Image
	d := s.session.Options.PasteOffset
	g := shiftInside(s.clipboard.Geometry.Translate(d, d), img.Width, img.Height)
	return s.Add(s.clipboard.Kind, g, s.clipboard.ClassID)
}

// HitTest returns the topmost annotation containing the point (x, y).
func (s *Store) HitTest(x, y float64) (Annotation, bool) {
	for i := len(s.annotations) - 1; i >= 0; i-- {
		if s.annotations[i].Geometry.Contains(x, y) {
			return s.annotations[i].clone(), true
		}
	}
	return Annotation{}, false
}

// Undo reverts the last change. It reports false when there is nothing to undo.
func (s *Store) Undo() bool {
	if len(s.undo) == 0 {
		return false
	}
	s.redo = append(s.redo, s.annotations)
	s.annotations = s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.version++
	return true
}

// Redo re-applies the last undone change. It reports false when there is nothing to redo.
func (s *Store) Redo() bool {
	if len(s.redo) == 0 {
		return false
	}
	s.undo = append(s.undo, s.annotations)
	s.annotations = s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.version++
	return true
}

// Export converts the annotations to YOLO lines and a segmentation mask for the image entry.
func (s *Store) Export(entry ImageEntry) (Export, error) {
	if entry.Width <= 0 || entry.Height <= 0 {
		return Export{}, fmt.Errorf("%w: image %q has size %dx%d", ErrInvalidGeometry, entry.Path,
			entry.Width, entry.Height)
	}

	var out Export
	var regions []Annotation
	for _, a := range s.annotations {
		if a.Kind.IsMask() {
			regions = append(regions, a)
			continue
		}
		out.Lines = append(out.Lines,
			FormatYOLOLine(a.ClassID, a.Geometry.(Box), entry.Width, entry.Height,
				s.session.Options.Precision))
	}

	if len(regions) > 0 {
		out.Mask = RasterizeMask(regions, entry.Width, entry.Height, s.session.Options)
	}
	return out, nil
}

// Import parses YOLO lines for the image entry and adds the boxes. Either all lines are added or,
// on the first malformed line, none.
func (s *Store) Import(lines []string, entry ImageEntry) ([]Annotation, error) {
	boxes, err := ParseYOLOLines(lines, entry.Width, entry.Height, s.session.Classes)
	if err != nil {
		return nil, err
	}

	added := make([]Annotation, 0, len(boxes))
	for _, b := range boxes {
		added = append(added,
			Annotation{ID: newAnnotationID(), ClassID: b.ClassID, Kind: KindBox, Geometry: b.Box})
	}
	if len(added) == 0 {
		return nil, nil
	}

	s.checkpoint()
	s.annotations = append(s.annotations, added...)
	return cloneAnnotations(added), nil
}

// Restore replaces the annotations with a, for example when loading a saved project, and clears
// the undo history. Ids are kept when present. Nothing is changed if any annotation is invalid.
func (s *Store) Restore(a []Annotation) error {
	restored := make([]Annotation, 0, len(a))
	for _, v := range a {
		if err := s.validate(v.Kind, v.Geometry, v.ClassID); err != nil {
			return err
		}
		v = v.clone()
		if v.ID == "" {
			v.ID = newAnnotationID()
		}
		restored = append(restored, v)
	}

	s.annotations = restored
	s.undo = nil
	s.redo = nil
	s.version++
	return nil
}

func (s *Store) validate(kind ShapeKind, g Geometry, classID int) error {
	if err := checkKind(kind, g); err != nil {
		return err
	}
	if !s.session.Classes.Valid(classID) {
		return fmt.Errorf("%w: %d", ErrUnknownClass, classID)
	}
	return validateGeometry(g, s.session.Image.Width, s.session.Image.Height)
}

func (s *Store) indexOf(id string) int {
	for i := range s.annotations {
		if s.annotations[i].ID == id {
			return i
		}
	}
	return -1
}

// checkpoint records the current state for Undo and invalidates the redo stack.
func (s *Store) checkpoint() {
	s.undo = append(s.undo, cloneAnnotations(s.annotations))
	if limit := s.session.Options.HistoryLimit; limit > 0 && len(s.undo) > limit {
		s.undo = s.undo[len(s.undo)-limit:]
	}
	s.redo = nil
	s.version++
}

func cloneAnnotations(a []Annotation) []Annotation {
	if a == nil {
		return nil
	}
	c := make([]Annotation, len(a))
	for i, v := range a {
		c[i] = v.clone()
	}
	return c
}
