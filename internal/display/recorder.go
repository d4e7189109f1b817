package display

import (
	"log/slog"
	"sync"

	"pidish/internal/logging"
)

// BlackFrame is recorded for Black calls.
const BlackFrame = "<black>"

// Recorder is a Display that logs and remembers frames instead of drawing them.
type Recorder struct {
	mu       sync.Mutex
	logger   *slog.Logger
	frames   []string
	shutdown bool
	failOn   string
	failErr  error
}

// NewRecorder returns an empty Recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{logger: logger}
}

// FailOn makes Show return err when asked for image.
func (r *Recorder) FailOn(image string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOn = image
	r.failErr = err
}

func (r *Recorder) Black() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, BlackFrame)
	r.logger.Debug("frame shown", logging.String("image", BlackFrame))
	return nil
}

func (r *Recorder) Show(imagePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil && imagePath == r.failOn {
		return r.failErr
	}
	r.frames = append(r.frames, imagePath)
	r.logger.Debug("frame shown", logging.String("image", imagePath))
	return nil
}

func (r *Recorder) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	return nil
}

// Frames returns every frame shown so far.
func (r *Recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// Last returns the most recent frame, or "" if none.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return ""
	}
	return r.frames[len(r.frames)-1]
}

// IsShutdown reports whether Shutdown was called.
func (r *Recorder) IsShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown
}
