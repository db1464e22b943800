package annotator

// TFRecord object detection specific functionality. Only box annotations are exported.

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	log "github.com/sirupsen/logrus"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// tfLabelID returns the TensorFlow label id of a class. Id 0 is reserved for the background.
func tfLabelID(classID int) int64 {
	return int64(classID) + 1
}

// toTFRecord converts the annotations of a single image to the TensorFlow object detection
// feature map.
func toTFRecord(fileData AnnotatedFile, classes *ClassTable) (TFFeatureMap, error) {
	_, format, err := decodeImageConfig(fileData.Image.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}
	imgData, err := os.ReadFile(fileData.Image.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	width, height := fileData.Image.Width, fileData.Image.Height
	f := make(TFFeatureMap, 16)
	f["image/height"] = height
	f["image/width"] = width
	f["image/filename"] = fileData.Image.Path
	f["image/source_id"] = fileData.Image.Path
	f["image/encoded"] = imgData
	f["image/format"] = format

	n := len(fileData.Annotations)
	xmins := make([]float32, 0, n)
	ymins := make([]float32, 0, n)
	xmaxs := make([]float32, 0, n)
	ymaxs := make([]float32, 0, n)
	texts := make([]string, 0, n)
	labels := make([]int64, 0, n)
	for _, a := range fileData.Annotations {
		b, ok := a.Geometry.(Box)
		if !ok || a.Kind != KindBox {
			continue
		}
		r := b.Bounds()
		xmins = append(xmins, float32(clamp(r.X1/float64(width), 0, 1)))
		ymins = append(ymins, float32(clamp(r.Y1/float64(height), 0, 1)))
		xmaxs = append(xmaxs, float32(clamp(r.X2/float64(width), 0, 1)))
		ymaxs = append(ymaxs, float32(clamp(r.Y2/float64(height), 0, 1)))

		name := fmt.Sprint(a.ClassID)
		if c, ok := classes.Class(a.ClassID); ok {
			name = c.Name
		}
		texts = append(texts, name)
		labels = append(labels, tfLabelID(a.ClassID))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = texts
	f["image/object/class/label"] = labels

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// The label map for classes is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data []AnnotatedFile,
	classes *ClassTable, numShards int) (err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one data element at a time.
	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return ioFailure("close", shardFile.Name(), err)
				}
				shardFile = nil
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return ioFailure("create", shardPath, err)
			}
			shardFile = f
		}

		features, err := toTFRecord(fileData, classes)
		if err != nil {
			log.Warnf("Failed to convert %q: %v", fileData.Image.Path, err)
			continue
		}
		if err := writeTFRecordExample(shardFile, example.New(features)); err != nil {
			return ioFailure("write", shardFile.Name(), err)
		}
	}

	return saveTFRecordLabelMap(labelMapPath, classes)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the class table in the prototxt label map format of the TensorFlow
// object detection API.
func saveTFRecordLabelMap(path string, classes *ClassTable) error {
	var sb strings.Builder
	for id, name := range classes.Names() {
		fmt.Fprintf(&sb, "item {\n  id: %d\n  name: %q\n}\n", tfLabelID(id), name)
	}
	if err := writeFileAtomic(path, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}
	return nil
}
