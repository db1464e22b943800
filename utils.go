package annotator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultImageExtensions are the image file extensions picked up when scanning a folder.
var DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".gif",
	".webp"}

// filesByExtInDir returns all regular files found directly in directory dirPath whose name ends in
// one of exts (case-insensitive), sorted by name. All files are returned if exts is empty.
func filesByExtInDir(dirPath string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %v", dirPath, err)
	}

	hasExt := func(name string) bool {
		if len(exts) == 0 {
			return true
		}
		lower := strings.ToLower(name)
		for _, ext := range exts {
			if strings.HasSuffix(lower, strings.ToLower(ext)) {
				return true
			}
		}
		return false
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		// Must be a regular file or a symlink and have the requested extension.
		mode := entry.Type()
		if (!mode.IsRegular() && mode&os.ModeSymlink == 0) || !hasExt(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dirPath, entry.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// mapFileNamesToExtensions maps the base names of the given file paths, with the file type
// extensions stripped off, to the file extension (without the dot).
func mapFileNamesToExtensions(filePaths []string) map[string]string {
	mapping := make(map[string]string, len(filePaths))
	for _, path := range filePaths {
		_, baseNoExt, ext, err := splitPath(path)
		if err != nil {
			log.Print(err)
			continue
		}
		mapping[baseNoExt] = ext
	}

	return mapping
}

// labelParserFn parses a label file given the label and image file paths.
type labelParserFn func(labelPath, imagePath string) (AnnotatedFile, error)

// parseLabelsWithOneToOneImages matches label files in labelDir, with file extension labelFileExt
// (e.g. ".txt") by file name to images in imageDir (with an arbitrary file extension). It then
// invokes parse on these path pairs.
//
// Label files that fail to parse are skipped with a warning. Returns the list of file annotations
// obtained by applying parse to all remaining label files.
func parseLabelsWithOneToOneImages(labelDir, labelFileExt, imageDir string, parse labelParserFn) (
	[]AnnotatedFile, error) {

	// Get the label file paths.
	labelFiles, err := filesByExtInDir(labelDir, labelFileExt)
	if err != nil {
		return nil, err
	}
	log.Printf("Parsing labels for %d files", len(labelFiles))

	// Find the image files and create a map from base file name without ext to ext.
	imageFiles, err := filesByExtInDir(imageDir, DefaultImageExtensions...)
	if err != nil {
		return nil, err
	}
	imageNamesToExt := mapFileNamesToExtensions(imageFiles)

	data := make([]AnnotatedFile, 0, len(labelFiles))
	for _, labelPath := range labelFiles {
		// Find the corresponding image.
		_, baseNoExt, _, err := splitPath(labelPath)
		if err != nil {
			log.Warnf("Error while parsing, skipping %q: %v", labelPath, err)
			continue
		}
		imageExt, found := imageNamesToExt[baseNoExt]
		if !found {
			log.Printf("No corresponding image file, skipping %q", labelPath)
			continue
		}
		imagePath := filepath.Join(imageDir, baseNoExt+"."+imageExt)

		// Parse the label file.
		fileData, err := parse(labelPath, imagePath)
		if err != nil {
			log.Warnf("Error while parsing, skipping %q: %v", labelPath, err)
			continue
		}

		data = append(data, fileData)
	}

	return data, nil
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %w", path, err)
	}

	return lines, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames it over path, so that
// readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeAtomic streams the output of write to a temporary file next to path and renames it over
// path on success. On failure the temporary file is removed and path is left untouched.
func writeAtomic(path string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return ioFailure("create", path, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		_ = tmp.Close()
		return ioFailure("write", path, err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return ioFailure("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return ioFailure("close", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return ioFailure("chmod", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return ioFailure("rename", path, err)
	}
	return nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
