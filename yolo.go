package annotator

// YOLO label format: one text file per image, one "class cx cy w h" line per object, with
// coordinates normalised by the image size.

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// YOLOClassesFile is the name of the file listing the class names, one per line in id order.
const YOLOClassesFile = "classes.txt"

// normTolerance is how far normalised box edges may overshoot [0, 1] from rounding before the line
// is rejected. Overshoots within tolerance are clamped.
const normTolerance = 1e-6

// YOLOBox is a parsed label line in pixel coordinates.
type YOLOBox struct {
	ClassID int
	Box     Box
}

// FormatYOLOLine normalises b by the image size and formats it with precision decimal places.
// Normalised values are clamped to [0, 1], and the rounded box is kept within the image so that
// ParseYOLOLine accepts the line at any precision.
func FormatYOLOLine(classID int, b Box, width, height, precision int) string {
	w, h := float64(width), float64(height)
	step := math.Pow(10, -float64(precision))
	cx, bw := fitRounded(b.CX/w, b.W/w, step)
	cy, bh := fitRounded(b.CY/h, b.H/h, step)

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(classID))
	for _, v := range [4]float64{cx, cy, bw, bh} {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(v, 'f', precision, 64))
	}
	return sb.String()
}

// fitRounded rounds the normalised center c and extent s to multiples of step. The extent is
// shrunk by whole steps where rounding would push an edge past [0, 1], and kept at one step at
// least.
func fitRounded(c, s, step float64) (float64, float64) {
	c = math.Round(clamp(c, 0, 1)/step) * step
	s = math.Round(clamp(s, 0, 1)/step) * step
	if max := 2 * math.Min(c, 1-c); s > max {
		s = math.Floor(max/step+1e-6) * step
	}
	if s < step {
		s = step
		c = clamp(c, step, 1-step)
	}
	return c, s
}

// ParseYOLOLine parses a single label line and denormalises it for a width x height image. If
// classes is not nil, the class id must index it.
func ParseYOLOLine(line string, width, height int, classes *ClassTable) (YOLOBox, error) {
	malformed := func(format string, args ...interface{}) (YOLOBox, error) {
		return YOLOBox{}, &LineError{Text: line, Reason: fmt.Sprintf(format, args...)}
	}

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return malformed("expected 5 fields, got %d", len(tokens))
	}

	classID, err := strconv.Atoi(tokens[0])
	if err != nil {
		return malformed("invalid class id: %v", err)
	}
	if classID < 0 {
		return malformed("negative class id %d", classID)
	}
	if classes != nil && !classes.Valid(classID) {
		return malformed("class id %d not in the class table", classID)
	}

	var v [4]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(tokens[i+1], 64)
		if err != nil {
			return malformed("invalid value: %v", err)
		}
		if math.IsNaN(v[i]) || v[i] < 0 || v[i] > 1 {
			return malformed("value %s outside [0, 1]", tokens[i+1])
		}
	}
	cx, cy, bw, bh := v[0], v[1], v[2], v[3]
	if bw <= 0 || bh <= 0 {
		return malformed("non-positive box extent")
	}

	// The box edges must lie within the image too.
	x1, x2 := cx-bw/2, cx+bw/2
	y1, y2 := cy-bh/2, cy+bh/2
	if x1 < -normTolerance || y1 < -normTolerance || x2 > 1+normTolerance || y2 > 1+normTolerance {
		return malformed("box exceeds the image")
	}
	x1, x2 = clamp(x1, 0, 1), clamp(x2, 0, 1)
	y1, y2 = clamp(y1, 0, 1), clamp(y2, 0, 1)

	w, h := float64(width), float64(height)
	return YOLOBox{
		ClassID: classID,
		Box:     BoxFromCorners(x1*w, y1*h, x2*w, y2*h),
	}, nil
}

// ParseYOLOLines parses all lines, skipping blank ones. It fails on the first malformed line.
func ParseYOLOLines(lines []string, width, height int, classes *ClassTable) ([]YOLOBox, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrInvalidGeometry, width, height)
	}

	boxes := make([]YOLOBox, 0, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b, err := ParseYOLOLine(line, width, height, classes)
		if err != nil {
			var le *LineError
			if errors.As(err, &le) {
				le.Line = i + 1
			}
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

// ReadYOLOFile reads and parses the label file at path for the image entry.
func ReadYOLOFile(path string, entry ImageEntry, classes *ClassTable) ([]Annotation, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, ioFailure("read", path, err)
	}

	boxes, err := ParseYOLOLines(lines, entry.Width, entry.Height, classes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	annotations := make([]Annotation, len(boxes))
	for i, b := range boxes {
		annotations[i] = Annotation{
			ID:       newAnnotationID(),
			ClassID:  b.ClassID,
			Kind:     KindBox,
			Geometry: b.Box,
		}
	}
	return annotations, nil
}

// WriteYOLOFile atomically writes the lines to path, replacing any existing file.
func WriteYOLOFile(path string, lines []string) error {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return writeFileAtomic(path, []byte(sb.String()))
}

// yoloLabelPath returns the label file path in labelDir for the image at imagePath.
func yoloLabelPath(labelDir, imagePath string) string {
	base := filepath.Base(imagePath)
	return filepath.Join(labelDir, strings.TrimSuffix(base, filepath.Ext(base))+".txt")
}

// FromYOLO reads the YOLO labels in labelDir and matches them by file name to the images in
// imageDir. Files with malformed lines are skipped with a warning.
func FromYOLO(labelDir, imageDir string, classes *ClassTable) ([]AnnotatedFile, error) {
	return parseLabelsWithOneToOneImages(labelDir, ".txt", imageDir,
		func(labelPath, imagePath string) (AnnotatedFile, error) {
			entry, err := newImageEntry(imagePath)
			if err != nil {
				return AnnotatedFile{}, err
			}
			annotations, err := ReadYOLOFile(labelPath, entry, classes)
			if err != nil {
				return AnnotatedFile{}, err
			}
			return AnnotatedFile{Image: entry, Annotations: annotations}, nil
		})
}

// WriteYOLO writes one label file per element of data to dirPath, plus the class names. Mask
// regions are ignored; see WriteMasks.
func WriteYOLO(dirPath string, data []AnnotatedFile, classes *ClassTable, precision int) error {
	dirInfo, err := os.Stat(dirPath)
	if err != nil || !dirInfo.IsDir() {
		return fmt.Errorf("cannot access directory %q: %v", dirPath, err)
	}

	for _, fileData := range data {
		lines := make([]string, 0, len(fileData.Annotations))
		for _, a := range fileData.Annotations {
			b, ok := a.Geometry.(Box)
			if !ok || a.Kind != KindBox {
				continue
			}
			lines = append(lines,
				FormatYOLOLine(a.ClassID, b, fileData.Image.Width, fileData.Image.Height, precision))
		}
		if err := WriteYOLOFile(yoloLabelPath(dirPath, fileData.Image.Path), lines); err != nil {
			return err
		}
	}

	if classes != nil {
		if err := WriteYOLOFile(filepath.Join(dirPath, YOLOClassesFile), classes.Names()); err != nil {
			return err
		}
	}
	log.WithField("dir", dirPath).Printf("Wrote YOLO labels for %d files", len(data))
	return nil
}

// ReadYOLOClasses reads a class names file as written by WriteYOLO.
func ReadYOLOClasses(path string) (*ClassTable, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, ioFailure("read", path, err)
	}

	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return NewClassTable(names...)
}
