package ctcio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const lockFileName = ".ctctrack.lock"

// ErrLocked is returned when another process writes into the same result directory
var ErrLocked = errors.New("result directory is locked by another process")

// MaskFileName returns CTC name of the relabeled mask of given frame. CTC uses
// three digits and switches to four for sequences longer than 1000 frames.
func MaskFileName(frame int, digits int) string {
	return fmt.Sprintf("mask%0*d.tif", digits, frame)
}

func maskDigits(indices []int) int {
	digits := 3
	for _, idx := range indices {
		if idx > 999 {
			digits = 4
		}
	}
	return digits
}

// WriteResult publishes relabeled masks and the lineage table into dir. Files
// are first written into a staging directory, then moved into place with the
// lineage table last, so res_track.txt only ever describes a complete result.
// The directory is guarded by an exclusive file lock for the whole write.
func WriteResult(dir string, result *celltrack.Result) error {
	if len(result.Frames) != len(result.FrameIndices) {
		return errors.Errorf("result holds %d frames but %d frame indices", len(result.Frames), len(result.FrameIndices))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create result directory %s", dir)
	}
	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return errors.Wrap(ErrLocked, dir)
	}
	defer lock.Unlock()

	staging := filepath.Join(dir, ".staging-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return errors.Wrap(err, "create staging directory")
	}
	defer os.RemoveAll(staging)

	digits := maskDigits(result.FrameIndices)
	names := make([]string, len(result.Frames))
	for i, img := range result.Frames {
		names[i] = MaskFileName(result.FrameIndices[i], digits)
		if err := WriteMask(filepath.Join(staging, names[i]), img); err != nil {
			return err
		}
	}
	lineagePath := filepath.Join(staging, LineageFileName)
	f, err := os.Create(lineagePath)
	if err != nil {
		return errors.Wrap(err, "create lineage")
	}
	if err := WriteLineage(f, result.Lineage); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close lineage")
	}

	// Stale lineage of an earlier run must not describe the new masks
	target := filepath.Join(dir, LineageFileName)
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove previous lineage")
	}
	for _, name := range names {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(dir, name)); err != nil {
			return errors.Wrapf(err, "publish %s", name)
		}
	}
	if err := os.Rename(lineagePath, target); err != nil {
		return errors.Wrap(err, "publish lineage")
	}
	return nil
}
