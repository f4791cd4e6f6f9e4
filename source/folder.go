package source

import (
	"image"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/util"
)

// Folder is a dataset backed by two directories: test images and their label
// masks, paired by position in name order. Images are decoded on demand; every
// ground-truth mask is decoded once at open and kept for the folder's lifetime.
type Folder struct {
	files  []util.ImageFile
	truths []images.Raster
}

// OpenFolder lists both directories and loads the ground truth.
//
// Arguments:
//   - imagesDir: Directory with the test images.
//   - masksDir: Directory with one label mask per test image.
//   - logger: Logger for load diagnostics (nil uses the standard logger).
//
// Returns:
//   - *Folder: The dataset.
//   - error: An error if listing or decoding fails or the counts differ.
func OpenFolder(imagesDir, masksDir string, logger logrus.FieldLogger) (*Folder, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	files, err := util.ListDirectoryImageFiles(imagesDir)
	if err != nil {
		return nil, errors.Wrap(err, "list test images")
	}
	masks, err := util.ListDirectoryImageFiles(masksDir)
	if err != nil {
		return nil, errors.Wrap(err, "list test masks")
	}
	if len(files) != len(masks) {
		return nil, errors.Errorf("dataset has %d images but %d masks", len(files), len(masks))
	}

	truths := make([]images.Raster, len(masks))
	for i, m := range masks {
		img, err := decodeFile(m)
		if err != nil {
			return nil, err
		}
		if truths[i], err = images.LabelRaster(img); err != nil {
			return nil, errors.Wrapf(err, "mask %s", m.Name)
		}
	}

	logger.WithFields(logrus.Fields{
		"images": imagesDir,
		"masks":  masksDir,
		"length": len(files),
	}).Info("dataset loaded")

	return &Folder{files: files, truths: truths}, nil
}

// Len returns the number of image/mask pairs.
func (f *Folder) Len() int {
	return len(f.files)
}

// Name returns the file name of image i, or "" when out of range.
func (f *Folder) Name(i int) string {
	if checkIndex(i, len(f.files)) != nil {
		return ""
	}
	return f.files[i].Name
}

// PullByIndex decodes image i into a four-channel raster.
func (f *Folder) PullByIndex(i int) (images.Raster, error) {
	if err := checkIndex(i, len(f.files)); err != nil {
		return images.Raster{}, err
	}
	img, err := decodeFile(f.files[i])
	if err != nil {
		return images.Raster{}, err
	}
	return images.FromImage(img), nil
}

// GroundTruth returns the cached label mask of image i.
func (f *Folder) GroundTruth(i int) (images.Raster, error) {
	if err := checkIndex(i, len(f.truths)); err != nil {
		return images.Raster{}, err
	}
	return f.truths[i], nil
}

func decodeFile(file util.ImageFile) (image.Image, error) {
	format, ok := images.FormatFromPath(file.Path)
	if !ok {
		return nil, errors.Errorf("unsupported image file %s", file.Path)
	}
	data, err := file.Read()
	if err != nil {
		return nil, err
	}
	img, err := images.Decode(data, format)
	if err != nil {
		return nil, errors.Wrap(err, file.Name)
	}
	return img, nil
}
