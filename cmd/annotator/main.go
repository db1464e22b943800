// Converts annotations between the YOLO and VGG Image Annotator formats and writes YOLO labels,
// segmentation masks, VIA projects and TFRecord files for training.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sensorable/annotator"
	"github.com/sensorable/annotator/internal/config"
	log "github.com/sirupsen/logrus"
)

var (
	convertFrom format // The source format.
	convertTo   format // The target format.

	configFilePath           string   // The YAML configuration file.
	classesFilePath          string   // A YOLO class names file, overriding the configured classes.
	imageDirPath             string   // The input directory with the labeled images.
	imageOutDirPath          string   // The output directory for images after processing.
	labelFileOrDirPath       string   // The input label directory or file, depending on the format.
	labelOutFileOrDirPaths   []string // The output label dir or file path(s), depending on the format.
	labelOutSplits           []int    // The cumulative split percentages for the output datasets.
	tfRecordLabelMapFilePath string   // The TFRecord label map file.
	numShardFiles            int      // The number of shard files to create.

	classMappings   string  // A comma-separated string of class id mappings.
	bboxScaleWidth  float64 // A scale factor for the bounding box width.
	bboxScaleHeight float64 // A scale factor for the bounding box height.
	bboxAspectRatio float64 // The desired output aspect ratio for bounding boxes.

	filterClasses        string  // A comma-separated string of class ids to keep (empty keeps all).
	filterKinds          string  // A comma-separated string of shape kinds to keep (empty keeps all).
	filterRequireLabel   bool    // Filter out files with no annotations (after other filters).
	filterMinBboxWidth   float64 // The minimum bounding width.
	filterMinBboxHeight  float64 // The minimum bounding height.
	filterMinAspectRatio float64 // The min. aspect ratio of bounding rectangles (w/h).
	filterMaxAspectRatio float64 // The max. aspect ratio of bounding rectangles (w/h).

	imageOutEncoding        string // The file type for image outputs.
	imageResizeLonger       int    // The target length for the longer side of the image.
	imageResizeShorter      int    // The target length for the shorter side of the image.
	imageDownsamplingFilter string // The algorithm to use when downsampling.
	imageUpsamplingFilter   string // The algorithm to use when upsampling.
	imageJPEGQuality        int    // The JPEG quality for JPEG outputs.
)

type format int

// The known formats.
const (
	Unknown format = iota // If an unknown format is specified.
	Masks                 // U-Net segmentation masks, output only.
	TFRecord
	VIA // VGG Image Annotator
	YOLO
)

func formatFrom(s string) format {
	switch s {
	case "masks":
		return Masks
	case "tfrecord":
		return TFRecord
	case "via":
		return VIA
	case "yolo":
		return YOLO
	}
	return Unknown
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  yolo input options:\t\t-labels <dir> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo output options:\t\t-labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  via input options:\t\t-labels <file> -images <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  via output options:\t\t-labels-out <file>")
		_, _ = fmt.Fprintln(os.Stderr, "  masks output options:\t\t-labels-out <dir>")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-labels-out <file>"+
			" -tfrecord-label-map-file [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Error(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Format arguments.
	from := flag.String("from", "", "The source `format` {yolo, via}")
	to := flag.String("to", "", "The target `format` {yolo, via, masks, tfrecord}")

	// Path arguments.
	flag.StringVar(&configFilePath, "config", configFilePath,
		"The `path` to the YAML configuration file (classes and annotation options)")
	flag.StringVar(&classesFilePath, "classes", classesFilePath,
		"The `path` to a YOLO class names file, one name per line; overrides the configured classes")
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory")
	flag.StringVar(&imageOutDirPath, "images-out", imageOutDirPath,
		"The `path` to the image output directory (only required when images are resized)")
	flag.StringVar(&labelFileOrDirPath, "labels", labelFileOrDirPath,
		"The `path` to the label input directory (yolo) or file (via)")
	outPaths := flag.String("labels-out", "",
		"The comma-separated paths (`path[,...]`) to the output directories (yolo, masks) or files"+
			" (via, tfrecord); must be one path per value in flag -split")
	outSplits := flag.String("split", "100",
		"The comma-separated output split percentages (`percent[,...]`) to divide the images into;"+
			" must add up to 100%")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map-file", tfRecordLabelMapFilePath,
		"The TFRecord label map file `path`")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")

	// Conversion and transformation arguments.
	flag.StringVar(&classMappings, "map-classes", classMappings,
		"Comma-separated list of old=new class id replacements")
	flag.Float64Var(&bboxScaleWidth, "bbox-scale-x", 1,
		"A scale factor for the width of all bounding boxes")
	flag.Float64Var(&bboxScaleHeight, "bbox-scale-y", 1,
		"A scale factor for the height of all bounding boxes")
	flag.Float64Var(&bboxAspectRatio, "bbox-aspect-ratio", 0,
		"The output aspect `ratio` for bounding boxes; boxes are grown (not shrunk) to match this"+
			" ratio when it is > 0")

	// Filter arguments.
	flag.StringVar(&filterClasses, "filter-classes", filterClasses,
		"Comma-separated list of class ids to keep (after map-classes; empty string keeps all)")
	flag.StringVar(&filterKinds, "filter-kinds", filterKinds,
		"Comma-separated list of shape kinds to keep {box, solid, ring} (empty string keeps all)")
	flag.BoolVar(&filterRequireLabel, "require-label", filterRequireLabel,
		"Require at least one annotation (after filters) to keep the image")
	flag.Float64Var(&filterMinBboxWidth, "min-bbox-width", filterMinBboxWidth,
		"The min. required width in `pixels` of shapes (before resizing)")
	flag.Float64Var(&filterMinBboxHeight, "min-bbox-height", filterMinBboxHeight,
		"The min. required height in `pixels` of shapes (before resizing)")
	flag.Float64Var(&filterMinAspectRatio, "min-bbox-aspect-ratio", filterMinAspectRatio,
		"The min. required aspect `ratio` (width/height) of shapes (zero disables the filter)")
	flag.Float64Var(&filterMaxAspectRatio, "max-bbox-aspect-ratio", filterMaxAspectRatio,
		"The max. required aspect `ratio` (width/height) of shapes (zero disables the filter)")

	// Image processing arguments.
	flag.StringVar(&imageOutEncoding, "image-enc", "jpg",
		"The `encoding` for output images {jpg, png}")
	flag.IntVar(&imageResizeLonger, "resize-longer", imageResizeLonger,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	flag.IntVar(&imageResizeShorter, "resize-shorter", imageResizeShorter,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	flag.StringVar(&imageDownsamplingFilter, "downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageUpsamplingFilter, "upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	verbose := flag.Bool("v", false, "Enable debug logging")

	// Parse and validate flags.
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	convertFrom = formatFrom(*from)
	convertTo = formatFrom(*to)

	// Validate the conversion direction.
	if convertFrom != YOLO && convertFrom != VIA {
		printUsageAndExit("Unsupported input format")
	} else if convertTo == Unknown {
		printUsageAndExit("Unsupported output format")
	}

	// Validate input arguments.
	if labelFileOrDirPath == "" || imageDirPath == "" {
		printUsageAndExit("Missing label or image input path argument")
	}

	// Validate output split arguments.
	labelOutFileOrDirPaths = strings.Split(*outPaths, ",")
	splits := strings.Split(*outSplits, ",")
	if len(splits) != len(labelOutFileOrDirPaths) {
		printUsageAndExit("The number of output datasets defined by -split and the number of" +
			" paths in -labels-out must match")
	}

	// Parse splits as cumulative int percentages.
	var splitSum int
	for _, v := range splits {
		if i, err := strconv.Atoi(v); err != nil || i < 0 || i > 100 {
			printUsageAndExit("Invalid value in -split: ", v)
		} else {
			splitSum += i
			labelOutSplits = append(labelOutSplits, splitSum)
		}
	}
	if splitSum != 100 {
		printUsageAndExit("The values in -split must add up to 100%")
	}

	// Validate other output arguments.
	if convertTo == TFRecord && tfRecordLabelMapFilePath == "" {
		printUsageAndExit("Missing label map output path argument")
	}

	// Transformation arguments.
	if bboxScaleWidth <= 0 || bboxScaleHeight <= 0 {
		printUsageAndExit("Invalid bounding box scale factor")
	} else if bboxAspectRatio < 0 {
		printUsageAndExit("Invalid value for -bbox-aspect-ratio")
	}

	// Image processing arguments.
	if (imageResizeLonger > 0 || imageResizeShorter > 0) && imageOutDirPath == "" {
		printUsageAndExit("Missing image output directory path")
	}
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}

	// Clean path arguments.
	imageDirPath = filepath.Clean(imageDirPath)
	if imageOutDirPath != "" {
		imageOutDirPath = filepath.Clean(imageOutDirPath)
		if imageDirPath == imageOutDirPath {
			printUsageAndExit("The image input and output paths cannot be identical")
		}
	}

	labelFileOrDirPath = filepath.Clean(labelFileOrDirPath)
	for i, v := range labelOutFileOrDirPaths {
		labelOutFileOrDirPaths[i] = filepath.Clean(v)
		if labelFileOrDirPath == labelOutFileOrDirPaths[i] {
			printUsageAndExit("The label input and output paths cannot be identical")
		}
	}
}

// loadConfig returns the configuration from -config, or the defaults, with the class table
// replaced by -classes if given.
func loadConfig() (*config.Config, *annotator.ClassTable, error) {
	cfg := config.Default()
	if configFilePath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFilePath); err != nil {
			return nil, nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if classesFilePath != "" {
		classes, err := annotator.ReadYOLOClasses(classesFilePath)
		return cfg, classes, err
	}
	classes, err := cfg.ClassTable()
	return cfg, classes, err
}

// splitList splits a comma-separated flag value, dropping empty elements.
func splitList(s string) []string {
	var list []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func filterOptions() (annotator.FilterOptions, error) {
	opts := annotator.FilterOptions{
		MinWidth:       filterMinBboxWidth,
		MinHeight:      filterMinBboxHeight,
		MinAspectRatio: filterMinAspectRatio,
		MaxAspectRatio: filterMaxAspectRatio,
		RequireLabel:   filterRequireLabel,
	}
	for _, v := range splitList(filterClasses) {
		id, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("invalid class id %q in -filter-classes", v)
		}
		opts.ClassIDs = append(opts.ClassIDs, id)
	}
	for _, v := range splitList(filterKinds) {
		k, err := annotator.ParseShapeKind(v)
		if err != nil {
			return opts, err
		}
		opts.Kinds = append(opts.Kinds, k)
	}
	return opts, nil
}

func main() {
	cfg, classes, err := loadConfig()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	opts := cfg.Options()

	// Parse input.
	var data []annotator.AnnotatedFile
	switch convertFrom {
	case YOLO:
		data, err = annotator.FromYOLO(labelFileOrDirPath, imageDirPath, classes)
	case VIA:
		data, err = annotator.FromVIA(labelFileOrDirPath, imageDirPath, classes)
	default:
		err = fmt.Errorf("unsupported input format")
	}
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}

	af := annotator.AnnotatedFiles(data)

	// Map classes.
	if err := af.MapClasses(splitList(classMappings)); err != nil {
		log.Fatal("Failed to map classes: ", err)
	}

	// Perform transformations.
	if bboxScaleWidth != 1 || bboxScaleHeight != 1 || bboxAspectRatio > 0 {
		af.TransformBoxes(bboxScaleWidth, bboxScaleHeight, bboxAspectRatio)
	}

	// Apply filters.
	fopts, err := filterOptions()
	if err != nil {
		log.Fatal("Invalid filter: ", err)
	}
	af.Filter(fopts)

	// Process images.
	err = af.ProcessImages(annotator.ImageOptions{
		OutDir:             imageOutDirPath,
		LongerSide:         imageResizeLonger,
		ShorterSide:        imageResizeShorter,
		DownsamplingFilter: imageDownsamplingFilter,
		UpsamplingFilter:   imageUpsamplingFilter,
		Encoding:           imageOutEncoding,
		JPEGQuality:        imageJPEGQuality,
	})
	if err != nil {
		log.Fatal("Image processing failed: ", err)
	}

	// Split data into output datasets.
	var datasets []annotator.AnnotatedFiles
	if len(labelOutSplits) == 1 {
		datasets = []annotator.AnnotatedFiles{af}
	} else {
		if datasets, err = af.Split(labelOutSplits); err != nil {
			log.Fatal("Failed to split the dataset: ", err)
		}
	}

	// Write output datasets.
	for i, data := range datasets {
		outPath := labelOutFileOrDirPaths[i]
		switch convertTo {
		case YOLO:
			if err = os.MkdirAll(outPath, 0755); err == nil {
				err = annotator.WriteYOLO(outPath, data, classes, opts.Precision)
			}
		case Masks:
			if err = os.MkdirAll(outPath, 0755); err == nil {
				err = annotator.WriteMasks(outPath, data, opts)
			}
		case VIA:
			err = annotator.WriteVIA(outPath, annotator.ToVIA(data, classes))
		case TFRecord:
			err = annotator.WriteTFRecord(outPath, tfRecordLabelMapFilePath, data, classes,
				numShardFiles)
		default:
			err = fmt.Errorf("unsupported output format")
		}
		if err != nil {
			log.Fatal("Conversion failed: ", err)
		}

		log.Printf("Successfully wrote annotations for %d files to %s", len(data), outPath)
	}

	log.Print("Total number of annotated files: ", len(af))
}
