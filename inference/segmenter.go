package inference

import (
	"context"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-segscan/images"
)

// runner is the part of a Session the segmenter drives.
type runner interface {
	InputData() []float32
	OutputData() []float32
	Run() error
	Close()
}

// SegmenterOptions configures NewSegmenter.
type SegmenterOptions struct {
	Model             ModelSpec
	ModelPath         string
	SharedLibraryPath string
	IntraOpThreads    int
	Logger            logrus.FieldLogger
}

// Segmenter is a Predictor backed by an ONNX segmentation model. Frames are
// split by the grid, each padded tile is predicted separately and the tile
// cores are stitched into one full-size mask.
type Segmenter struct {
	model   ModelSpec
	decoder OutputDecoder
	logger  logrus.FieldLogger

	mu     sync.Mutex // guards runner tensors
	runner runner
}

// NewSegmenter loads the model into an onnxruntime session.
//
// Arguments:
//   - opts: The segmenter options.
//
// Returns:
//   - *Segmenter: The segmenter. Call Close to release the session.
//   - error: An error if the model spec is invalid or the session cannot be created.
func NewSegmenter(opts SegmenterOptions) (*Segmenter, error) {
	if err := opts.Model.Validate(); err != nil {
		return nil, err
	}
	libPath := opts.SharedLibraryPath
	if libPath == "" {
		var err error
		if libPath, err = DefaultSharedLibraryPath(); err != nil {
			return nil, err
		}
	}

	decoder := opts.Model.Decoder()
	session, err := NewSession(SessionOptions{
		ModelPath:         opts.ModelPath,
		SharedLibraryPath: libPath,
		InputName:         opts.Model.InputName,
		OutputName:        opts.Model.OutputName,
		InputShape:        ort.NewShape(1, 3, int64(opts.Model.InputHeight), int64(opts.Model.InputWidth)),
		OutputShape:       ort.NewShape(1, int64(decoder.Classes), int64(decoder.Height), int64(decoder.Width)),
		IntraOpThreads:    opts.IntraOpThreads,
	})
	if err != nil {
		return nil, err
	}
	return newSegmenter(opts.Model, session, opts.Logger), nil
}

func newSegmenter(model ModelSpec, r runner, logger logrus.FieldLogger) *Segmenter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Segmenter{
		model:   model,
		decoder: model.Decoder(),
		logger:  logger.WithField("model", model.ID),
		runner:  r,
	}
}

// Model returns the spec the segmenter was built with.
func (s *Segmenter) Model() ModelSpec { return s.model }

// Predict segments frame and returns a single-channel 0/255 mask of the
// frame's size.
//
// Arguments:
//   - ctx: Checked between tiles.
//   - frame: The frame to segment.
//   - grid: The tiling of the frame.
//
// Returns:
//   - images.Raster: The mask.
//   - error: An error if the grid is invalid, ctx is done or the model fails.
func (s *Segmenter) Predict(ctx context.Context, frame images.Raster, grid Grid) (images.Raster, error) {
	if frame.Empty() {
		return images.Raster{}, errors.New("cannot segment empty frame")
	}
	if err := grid.Validate(); err != nil {
		return images.Raster{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src := frame.Image()
	mask := images.NewRaster(frame.Width, frame.Height, images.ChannelsGray)
	for _, tile := range grid.Tiles(frame.Width, frame.Height) {
		if err := ctx.Err(); err != nil {
			return images.Raster{}, err
		}

		crop := imaging.Crop(src, tile.Padded)
		if err := PrepareInput(crop, s.runner.InputData(), s.model.InputWidth, s.model.InputHeight, s.model.Normalization); err != nil {
			return images.Raster{}, err
		}
		if err := s.runner.Run(); err != nil {
			return images.Raster{}, errors.Wrap(err, "run model")
		}
		labels, err := s.decoder.Decode(s.runner.OutputData())
		if err != nil {
			return images.Raster{}, err
		}

		tileMask := images.Raster{Width: s.decoder.Width, Height: s.decoder.Height, Channels: images.ChannelsGray, Pix: labels}
		scaled, err := images.ResampleNearest(tileMask, tile.Padded.Dx(), tile.Padded.Dy())
		if err != nil {
			return images.Raster{}, err
		}
		stitchCore(mask, scaled, tile)
	}
	return mask, nil
}

// Close releases the onnxruntime session.
func (s *Segmenter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner.Close()
}

// stitchCore copies the core region of a padded tile mask into dst.
func stitchCore(dst, padded images.Raster, tile Tile) {
	core := tile.Core
	dx := core.Min.X - tile.Padded.Min.X
	for y := core.Min.Y; y < core.Max.Y; y++ {
		sy := y - tile.Padded.Min.Y
		srcRow := padded.Pix[sy*padded.Width+dx : sy*padded.Width+dx+core.Dx()]
		copy(dst.Pix[y*dst.Width+core.Min.X:y*dst.Width+core.Max.X], srcRow)
	}
}
