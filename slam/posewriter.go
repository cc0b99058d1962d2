package slam

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/collabslam/logging"
	"go.viam.com/collabslam/spatialmath"
)

// ExperimentTimestampFormat names the per-run directory of an EvaluationPoseWriter.
const ExperimentTimestampFormat = "20060102T150405"

// EvaluationPoseWriter writes, for every relocalised frame, a text file holding the relocaliser's
// raw pose followed by the refined pose as 4x4 matrices. Files land in
// <root>/<experiment timestamp>/<scene>/<frame>.reloc.txt and are written off the caller's
// goroutine.
type EvaluationPoseWriter struct {
	dir    string
	logger logging.Logger

	mu      sync.Mutex
	closed  bool
	errs    error
	pending sync.WaitGroup
}

// NewEvaluationPoseWriter returns a writer for a new experiment under `root`, named after the
// current time of `clk`.
func NewEvaluationPoseWriter(root string, clk clock.Clock, logger logging.Logger) *EvaluationPoseWriter {
	return &EvaluationPoseWriter{
		dir:    filepath.Join(root, clk.Now().UTC().Format(ExperimentTimestampFormat)),
		logger: logger,
	}
}

// Dir returns the experiment directory.
func (w *EvaluationPoseWriter) Dir() string {
	return w.dir
}

// PoseFilename returns the file the poses of a frame are written to.
func (w *EvaluationPoseWriter) PoseFilename(sceneID string, frameIndex int) string {
	return filepath.Join(w.dir, sceneID, fmt.Sprintf("%06d.reloc.txt", frameIndex))
}

// WritePoses implements PoseWriter. It never blocks on I/O.
func (w *EvaluationPoseWriter) WritePoses(sceneID string, frameIndex int, raw, refined spatialmath.Pose) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	filename := w.PoseFilename(sceneID, frameIndex)
	contents := formatPoseMatrix(raw) + "\n" + formatPoseMatrix(refined)
	w.pending.Add(1)
	goutils.PanicCapturingGo(func() {
		defer w.pending.Done()
		if err := writePoseFile(filename, contents); err != nil {
			w.logger.Warnw("cannot write relocalisation poses", "file", filename, "error", err)
			w.mu.Lock()
			w.errs = multierr.Combine(w.errs, err)
			w.mu.Unlock()
		}
	})
}

// Close waits for outstanding writes and returns their combined errors.
func (w *EvaluationPoseWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.pending.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errs
}

func writePoseFile(filename, contents string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return errors.Wrap(err, "cannot create pose directory")
	}
	//nolint:gosec
	return os.WriteFile(filename, []byte(contents), 0o640)
}

func formatPoseMatrix(pose spatialmath.Pose) string {
	m := spatialmath.PoseToMatrix(pose)
	var sb strings.Builder
	for i := 0; i < 4; i++ {
		row := make([]string, 4)
		for j := 0; j < 4; j++ {
			row[j] = fmt.Sprintf("%.9g", m.At(i, j))
		}
		sb.WriteString(strings.Join(row, " "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ReadPoseFile parses a file written by an EvaluationPoseWriter back into its raw and refined
// poses.
func ReadPoseFile(filename string) (raw, refined spatialmath.Pose, err error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, err
	}
	var values []float64
	for _, field := range strings.Fields(string(data)) {
		var v float64
		if _, err := fmt.Sscan(field, &v); err != nil {
			return nil, nil, errors.Wrapf(err, "bad matrix entry %q", field)
		}
		values = append(values, v)
	}
	if len(values) != 32 {
		return nil, nil, errors.Errorf("expected two 4x4 matrices, got %d values", len(values))
	}
	raw, err = spatialmath.NewPoseFromMatrix(mat.NewDense(4, 4, values[:16]))
	if err != nil {
		return nil, nil, errors.Wrap(err, "raw pose")
	}
	refined, err = spatialmath.NewPoseFromMatrix(mat.NewDense(4, 4, values[16:]))
	if err != nil {
		return nil, nil, errors.Wrap(err, "refined pose")
	}
	return raw, refined, nil
}
