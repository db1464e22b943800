package annotator

// VGG Image Annotator (VIA) specific functionality. VIA projects hold every shape kind, so they also
// serve as the project file that keeps mask regions editable between sessions.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	log "github.com/sirupsen/logrus"
)

// VIAShape describes the shape of a region. Only the fields relevant for Name are serialised.
type VIAShape struct {
	Name string `json:"name"` // rect, circle, ellipse or polygon.

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	R  float64 `json:"r"`
	RX float64 `json:"rx"`
	RY float64 `json:"ry"`

	AllPointsX []float64 `json:"all_points_x"`
	AllPointsY []float64 `json:"all_points_y"`
}

// MarshalJSON writes the attributes VIA expects for the shape name.
func (s VIAShape) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{"name": s.Name}
	switch s.Name {
	case "rect":
		m["x"], m["y"], m["width"], m["height"] = s.X, s.Y, s.Width, s.Height
	case "circle":
		m["cx"], m["cy"], m["r"] = s.CX, s.CY, s.R
	case "ellipse":
		m["cx"], m["cy"], m["rx"], m["ry"] = s.CX, s.CY, s.RX, s.RY
	case "polygon", "polyline":
		m["all_points_x"], m["all_points_y"] = s.AllPointsX, s.AllPointsY
	}
	return json.Marshal(m)
}

// VIARegionAnnotation is a single region annotation for a particular image in a VIA file.
type VIARegionAnnotation struct {
	Attributes map[string]string `json:"region_attributes"`
	Shape      VIAShape          `json:"shape_attributes"`
}

// VIAAnnotatedFile defines the VIA annotation structure for a single file.
type VIAAnnotatedFile struct {
	Annotations []VIARegionAnnotation `json:"regions"`
	Attributes  map[string]string     `json:"file_attributes"`
	FilePath    string                `json:"filename"`
	Size        int64                 `json:"size"`
}

// VIAOptionsAttribute defines attributes of type "radio" or "dropdown".
type VIAOptionsAttribute struct {
	Type           string            `json:"type"` // "radio" or "dropdown"
	Description    string            `json:"description"`
	Options        map[string]string `json:"options"`
	DefaultOptions map[string]bool   `json:"default_options"`
}

// VIAAttributes defines the VIA attribute metadata.
type VIAAttributes struct {
	Region map[string]interface{} `json:"region"`
	File   map[string]interface{} `json:"file"`
}

// VIAProject defines the VIA project structure.
type VIAProject struct {
	Attributes    VIAAttributes               `json:"_via_attributes"`
	ImageMetadata map[string]VIAAnnotatedFile `json:"_via_img_metadata"`
	// Must exist for VIA to load the project. Default values will be used.
	Settings struct{} `json:"_via_settings"`
}

// Attribute keys.
const (
	viaLabelAttribute  = "Label" // Region class name.
	viaKindAttribute   = "Kind"  // Region ShapeKind.
	viaWidthAttribute  = "Width" // File image width.
	viaHeightAttribute = "Height"
)

// toVIARegion converts an annotation to a VIA region.
func toVIARegion(a Annotation, classes *ClassTable) VIARegionAnnotation {
	label := strconv.Itoa(a.ClassID)
	if c, ok := classes.Class(a.ClassID); ok {
		label = c.Name
	}

	region := VIARegionAnnotation{
		Attributes: map[string]string{viaLabelAttribute: label, viaKindAttribute: a.Kind.String()},
	}
	switch g := a.Geometry.(type) {
	case Box:
		r := g.Bounds()
		region.Shape = VIAShape{Name: "rect", X: r.X1, Y: r.Y1, Width: g.W, Height: g.H}
	case Circle:
		region.Shape = VIAShape{Name: "circle", CX: g.Center.X, CY: g.Center.Y, R: g.Radius}
	case Ellipse:
		region.Shape = VIAShape{Name: "ellipse", CX: g.Center.X, CY: g.Center.Y, RX: g.RX, RY: g.RY}
	case Polygon:
		region.Shape = VIAShape{Name: "polygon"}
		for _, p := range g.Points {
			region.Shape.AllPointsX = append(region.Shape.AllPointsX, p.X)
			region.Shape.AllPointsY = append(region.Shape.AllPointsY, p.Y)
		}
	}
	return region
}

// fromVIARegion converts a VIA region to an annotation, resolving the class name in classes and
// adding unknown names to it.
func fromVIARegion(r VIARegionAnnotation, classes *ClassTable) (Annotation, error) {
	var g Geometry
	s := r.Shape
	switch s.Name {
	case "rect":
		g = BoxFromCorners(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
	case "circle":
		g = Circle{Point{s.CX, s.CY}, s.R}
	case "ellipse":
		g = Ellipse{Point{s.CX, s.CY}, s.RX, s.RY}
	case "polygon", "polyline":
		if len(s.AllPointsX) != len(s.AllPointsY) {
			return Annotation{}, fmt.Errorf("%w: polygon with %d x and %d y values",
				ErrInvalidGeometry, len(s.AllPointsX), len(s.AllPointsY))
		}
		p := Polygon{Points: make([]Point, len(s.AllPointsX))}
		for i := range s.AllPointsX {
			p.Points[i] = Point{s.AllPointsX[i], s.AllPointsY[i]}
		}
		g = p
	default:
		return Annotation{}, fmt.Errorf("%w: unsupported VIA shape %q", ErrInvalidGeometry, s.Name)
	}

	kind := KindSolidMask
	if s.Name == "rect" {
		kind = KindBox
	}
	if k, ok := r.Attributes[viaKindAttribute]; ok {
		var err error
		if kind, err = ParseShapeKind(k); err != nil {
			return Annotation{}, err
		}
	}
	if err := checkKind(kind, g); err != nil {
		return Annotation{}, err
	}

	label := r.Attributes[viaLabelAttribute]
	classID, found := classes.IndexOf(label)
	if !found {
		var err error
		if classID, err = classes.Add(label, ""); err != nil {
			return Annotation{}, err
		}
		log.Printf("Added class %q with id %d", label, classID)
	}

	return Annotation{ID: newAnnotationID(), ClassID: classID, Kind: kind, Geometry: g}, nil
}

// ToVIA converts the annotation data to a VIA project. Files are keyed and named by the image
// base name.
func ToVIA(data []AnnotatedFile, classes *ClassTable) VIAProject {
	viaData := VIAProject{
		Attributes: VIAAttributes{
			Region: make(map[string]interface{}),
			File:   make(map[string]interface{}),
		},
		ImageMetadata: make(map[string]VIAAnnotatedFile, len(data)),
	}

	labels := VIAOptionsAttribute{Type: "radio", Options: map[string]string{},
		DefaultOptions: map[string]bool{}}
	for _, name := range classes.Names() {
		labels.Options[name] = ""
	}
	kinds := VIAOptionsAttribute{Type: "radio", Options: map[string]string{},
		DefaultOptions: map[string]bool{}}
	for _, k := range []ShapeKind{KindBox, KindSolidMask, KindRingMask} {
		kinds.Options[k.String()] = ""
	}
	viaData.Attributes.Region[viaLabelAttribute] = labels
	viaData.Attributes.Region[viaKindAttribute] = kinds

	for _, f := range data {
		viaFile := toVIAFile(f, classes)
		viaData.ImageMetadata[viaFile.FilePath] = viaFile
	}

	return viaData
}

func toVIAFile(f AnnotatedFile, classes *ClassTable) VIAAnnotatedFile {
	viaFile := VIAAnnotatedFile{
		Annotations: make([]VIARegionAnnotation, 0, len(f.Annotations)),
		Attributes: map[string]string{
			viaWidthAttribute:  strconv.Itoa(f.Image.Width),
			viaHeightAttribute: strconv.Itoa(f.Image.Height),
		},
		FilePath: filepath.Base(f.Image.Path),
	}
	if info, err := os.Stat(f.Image.Path); err == nil {
		viaFile.Size = info.Size()
	}
	for _, a := range f.Annotations {
		viaFile.Annotations = append(viaFile.Annotations, toVIARegion(a, classes))
	}
	return viaFile
}

// fromVIAFile converts one VIA file entry. Relative file names are resolved against imageDir. The
// image size is taken from the file attributes, or read from the image when they are missing.
// Invalid regions are skipped with a warning.
func fromVIAFile(viaFile VIAAnnotatedFile, imageDir string, classes *ClassTable) (
	AnnotatedFile, error) {

	path := viaFile.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(imageDir, path)
	}

	width, errW := strconv.Atoi(viaFile.Attributes[viaWidthAttribute])
	height, errH := strconv.Atoi(viaFile.Attributes[viaHeightAttribute])
	entry := ImageEntry{Path: path, Width: width, Height: height}
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		var err error
		if entry, err = newImageEntry(path); err != nil {
			return AnnotatedFile{}, err
		}
	}

	f := AnnotatedFile{Image: entry, Annotations: make([]Annotation, 0, len(viaFile.Annotations))}
	for i, r := range viaFile.Annotations {
		a, err := fromVIARegion(r, classes)
		if err == nil {
			err = validateGeometry(a.Geometry, entry.Width, entry.Height)
		}
		if err != nil {
			log.WithField("file", viaFile.FilePath).Warnf("Skipping region %d: %v", i, err)
			continue
		}
		f.Annotations = append(f.Annotations, a)
	}
	return f, nil
}

// FromVIA reads and parses the VIA project at path. Unknown class names are added to classes.
func FromVIA(path, imageDir string, classes *ClassTable) ([]AnnotatedFile, error) {
	viaData, err := ReadVIA(path)
	if err != nil {
		return nil, err
	}

	// Map iteration order is random; sort for reproducible output.
	keys := make([]string, 0, len(viaData.ImageMetadata))
	for k := range viaData.ImageMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([]AnnotatedFile, 0, len(keys))
	for _, k := range keys {
		f, err := fromVIAFile(viaData.ImageMetadata[k], imageDir, classes)
		if err != nil {
			log.Warnf("Error while parsing, skipping %q: %v", k, err)
			continue
		}
		data = append(data, f)
	}

	return data, nil
}

// ReadVIA reads the VIA project at path.
func ReadVIA(path string) (VIAProject, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return VIAProject{}, ioFailure("read", path, err)
	}

	var viaData VIAProject
	if err := json.Unmarshal(enc, &viaData); err != nil {
		return VIAProject{}, fmt.Errorf("failed to parse VIA input from %q: %v", path, err)
	}
	if viaData.ImageMetadata == nil {
		viaData.ImageMetadata = make(map[string]VIAAnnotatedFile)
	}
	return viaData, nil
}

// WriteVIA atomically writes the VIA project data to outFile.
func WriteVIA(outFile string, data VIAProject) error {
	enc, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(outFile, enc)
}
