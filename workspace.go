package annotator

// The workspace is the folder interface: it walks the images of a directory and persists the
// annotations of each image when switching to another one.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// WorkspaceConfig configures OpenWorkspace.
type WorkspaceConfig struct {
	ImageDir    string
	LabelDir    string   // Output directory for YOLO label files.
	MaskDir     string   // Output directory for segmentation masks.
	ProjectPath string   // Optional VIA project file keeping all shapes editable.
	Extensions  []string // Image file extensions, DefaultImageExtensions if empty.
	Classes     *ClassTable
	Options     Options
}

// Workspace navigates the images of a folder. Only the current image's annotations are held in
// memory, by the Store.
type Workspace struct {
	cfg          WorkspaceConfig
	images       []ImageEntry
	index        int
	store        *Store
	savedVersion int
	project      *VIAProject
	skippedLabel string // Malformed label file of the current image, kept until replaced.
}

// OpenWorkspace scans cfg.ImageDir for images and loads the annotations of the first one. Images
// whose header cannot be decoded are skipped with a warning.
func OpenWorkspace(cfg WorkspaceConfig) (*Workspace, error) {
	if cfg.Classes == nil {
		cfg.Classes = DefaultClassTable()
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultImageExtensions
	}
	if cfg.Options == (Options{}) {
		cfg.Options = DefaultOptions()
	} else {
		cfg.Options = cfg.Options.withDefaults()
	}

	paths, err := filesByExtInDir(cfg.ImageDir, cfg.Extensions...)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.LabelDir, cfg.MaskDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ioFailure("create", dir, err)
		}
	}

	w := &Workspace{cfg: cfg, images: make([]ImageEntry, 0, len(paths))}
	for _, path := range paths {
		entry, err := newImageEntry(path)
		if err != nil {
			log.Warnf("Skipping %q: %v", path, err)
			continue
		}
		w.images = append(w.images, entry)
	}
	log.WithField("dir", cfg.ImageDir).Printf("Found %d images", len(w.images))

	if cfg.ProjectPath != "" {
		project, err := ReadVIA(cfg.ProjectPath)
		if errors.Is(err, os.ErrNotExist) {
			project = ToVIA(nil, cfg.Classes)
		} else if err != nil {
			return nil, err
		}
		w.project = &project
	}

	w.store = NewStore(&Session{Classes: cfg.Classes, Options: cfg.Options})
	if len(w.images) > 0 {
		w.load(0)
	}
	return w, nil
}

// Len is the number of images.
func (w *Workspace) Len() int {
	return len(w.images)
}

// Index is the position of the current image.
func (w *Workspace) Index() int {
	return w.index
}

// Images returns the image entries in folder order.
func (w *Workspace) Images() []ImageEntry {
	return append([]ImageEntry(nil), w.images...)
}

// Current returns the current image. It reports false for an empty folder.
func (w *Workspace) Current() (ImageEntry, bool) {
	if len(w.images) == 0 {
		return ImageEntry{}, false
	}
	return w.images[w.index], true
}

// Store returns the annotation store of the current image.
func (w *Workspace) Store() *Store {
	return w.store
}

// Classes returns the class table shared by all images.
func (w *Workspace) Classes() *ClassTable {
	return w.cfg.Classes
}

// Next advances to the following image (key D). It is a no-op on the last image.
func (w *Workspace) Next() error {
	if w.index+1 >= len(w.images) {
		return nil
	}
	return w.Goto(w.index + 1)
}

// Prev goes back to the preceding image (key A). It is a no-op on the first image.
func (w *Workspace) Prev() error {
	if w.index == 0 {
		return nil
	}
	return w.Goto(w.index - 1)
}

// Goto switches to image i. Modified annotations of the current image are written first; if that
// fails the current image stays loaded.
func (w *Workspace) Goto(i int) error {
	if i < 0 || i >= len(w.images) {
		return fmt.Errorf("image index %d out of range [0, %d)", i, len(w.images))
	}
	if i == w.index {
		return nil
	}
	if w.store.Version() != w.savedVersion {
		if err := w.Flush(); err != nil {
			return err
		}
	}
	w.load(i)
	return nil
}

// Flush writes the label file and mask of the current image, and updates the project file when
// one is configured.
func (w *Workspace) Flush() error {
	entry, ok := w.Current()
	if !ok {
		return nil
	}

	exp, err := w.store.Export(entry)
	if err != nil {
		return err
	}
	labelPath := yoloLabelPath(w.cfg.LabelDir, entry.Path)
	if w.skippedLabel == labelPath {
		// The malformed file was never loaded; keep it for manual repair.
		backup := labelPath + ".bak"
		if err := os.Rename(labelPath, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return ioFailure("rename", labelPath, err)
		}
		log.WithField("image", filepath.Base(entry.Path)).Warnf("Moved malformed labels to %q",
			backup)
		w.skippedLabel = ""
	}
	if err := WriteYOLOFile(labelPath, exp.Lines); err != nil {
		return err
	}

	mPath := maskPath(w.cfg.MaskDir, entry.Path)
	if exp.Mask != nil {
		if err := WriteMask(mPath, exp.Mask); err != nil {
			return err
		}
	} else if err := os.Remove(mPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		// A mask left from deleted regions would no longer match the annotations.
		return ioFailure("remove", mPath, err)
	}

	if w.project != nil {
		viaFile := toVIAFile(AnnotatedFile{Image: entry, Annotations: w.store.Annotations()},
			w.cfg.Classes)
		w.project.ImageMetadata[viaFile.FilePath] = viaFile
		if err := w.SaveProject(); err != nil {
			return err
		}
	}

	w.savedVersion = w.store.Version()
	log.WithField("image", filepath.Base(entry.Path)).Printf("Saved %d annotations",
		w.store.Len())
	return nil
}

// SaveProject writes the project file, if one is configured.
func (w *Workspace) SaveProject() error {
	if w.project == nil {
		return nil
	}

	// Refresh the class options, the table may have grown.
	fresh := ToVIA(nil, w.cfg.Classes)
	w.project.Attributes = fresh.Attributes
	return WriteVIA(w.cfg.ProjectPath, *w.project)
}

// Close flushes pending changes of the current image.
func (w *Workspace) Close() error {
	if w.store.Version() == w.savedVersion {
		return nil
	}
	return w.Flush()
}

// load makes image i current and restores its annotations from the project file or, failing that,
// from its label file. Unreadable annotations are reported as warnings and the image starts empty.
func (w *Workspace) load(i int) {
	entry := w.images[i]
	w.index = i
	w.store.Reset(&Session{Image: entry, Classes: w.cfg.Classes, Options: w.cfg.Options})
	w.skippedLabel = ""
	logger := log.WithField("image", filepath.Base(entry.Path))

	var annotations []Annotation
	if viaFile, ok := w.projectFile(entry); ok {
		f, err := fromVIAFile(viaFile, w.cfg.ImageDir, w.cfg.Classes)
		if err != nil {
			logger.Warnf("Cannot restore project annotations: %v", err)
		}
		annotations = f.Annotations
	} else {
		labelPath := yoloLabelPath(w.cfg.LabelDir, entry.Path)
		a, err := ReadYOLOFile(labelPath, entry, w.cfg.Classes)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			logger.Warnf("Skipping labels: %v", err)
			w.skippedLabel = labelPath
		default:
			annotations = a
		}
	}

	if err := w.store.Restore(annotations); err != nil {
		logger.Warnf("Skipping invalid annotations: %v", err)
	}
	w.savedVersion = w.store.Version()
}

func (w *Workspace) projectFile(entry ImageEntry) (VIAAnnotatedFile, bool) {
	if w.project == nil {
		return VIAAnnotatedFile{}, false
	}
	f, ok := w.project.ImageMetadata[filepath.Base(entry.Path)]
	return f, ok
}
