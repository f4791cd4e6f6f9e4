package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var environmentOnce sync.Once

// DefaultSharedLibraryPath returns the conventional location of the ONNX
// Runtime shared library for the current platform.
//
// Returns:
//   - string: The path to the shared library.
//   - error: An error if the platform has no known library.
func DefaultSharedLibraryPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library known for %s/%s", runtime.GOOS, runtime.GOARCH)
}

// initEnvironment loads the ONNX Runtime library once per process.
func initEnvironment(libPath string) error {
	var err error
	environmentOnce.Do(func() {
		if _, statErr := os.Stat(libPath); statErr != nil {
			err = errors.Wrapf(statErr, "onnxruntime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		err = errors.Wrap(ort.InitializeEnvironment(), "initialize onnxruntime environment")
	})
	if err == nil && !ort.IsInitialized() {
		return errors.New("onnxruntime environment is not initialized")
	}
	return err
}

// Session represents a model session from the onnxruntime with its single
// input and output tensor.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// SessionOptions configures NewSession.
type SessionOptions struct {
	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	InputShape        ort.Shape
	OutputShape       ort.Shape
	// IntraOpThreads is the onnxruntime intra-op thread count; 0 keeps the default.
	IntraOpThreads int
}

// NewSession creates an onnxruntime session with preallocated tensors.
//
// Arguments:
//   - opts: The session options.
//
// Returns:
//   - *Session: The session. Call Close to release it.
//   - error: An error if the runtime, tensors or session cannot be created.
func NewSession(opts SessionOptions) (*Session, error) {
	if err := initEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](opts.InputShape)
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](opts.OutputShape)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errors.Wrap(err, "set intra-op threads")
		}
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(err, "create session for %s", opts.ModelPath)
	}

	return &Session{Session: session, Input: input, Output: output}, nil
}

// InputData returns the backing slice of the input tensor.
func (s *Session) InputData() []float32 { return s.Input.GetData() }

// OutputData returns the backing slice of the output tensor.
func (s *Session) OutputData() []float32 { return s.Output.GetData() }

// Run executes the model on the current input tensor.
func (s *Session) Run() error {
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		s.Session.Destroy()
		s.Session = nil
	}
}
