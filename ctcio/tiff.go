// Package ctcio reads and writes Cell Tracking Challenge style mask sequences
// and lineage files.
package ctcio

import (
	"bufio"
	"encoding/binary"
	"image"
	"io"
	"os"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
)

// MaxLabel is the largest label a 16-bit mask can hold
const MaxLabel = 65535

// ErrUnsupportedMask is returned for TIFF images which are not 8 or 16 bit grayscale
var ErrUnsupportedMask = errors.New("mask must be 8 or 16 bit grayscale")

// DecodeMask reads single-page grayscale TIFF into label image
func DecodeMask(r io.Reader) (*celltrack.LabelImage, error) {
	decoded, err := tiff.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "Can't decode TIFF")
	}
	bounds := decoded.Bounds()
	img := celltrack.NewLabelImage(bounds.Dx(), bounds.Dy())
	switch src := decoded.(type) {
	case *image.Gray16:
		for row := 0; row < bounds.Dy(); row++ {
			offset := row * src.Stride
			for col := 0; col < bounds.Dx(); col++ {
				img.Set(row, col, int32(binary.BigEndian.Uint16(src.Pix[offset+2*col:])))
			}
		}
	case *image.Gray:
		for row := 0; row < bounds.Dy(); row++ {
			offset := row * src.Stride
			for col := 0; col < bounds.Dx(); col++ {
				img.Set(row, col, int32(src.Pix[offset+col]))
			}
		}
	default:
		return nil, errors.Wrapf(ErrUnsupportedMask, "got %T", decoded)
	}
	return img, nil
}

// EncodeMask writes label image as deflate compressed 16-bit grayscale TIFF
func EncodeMask(w io.Writer, img *celltrack.LabelImage) error {
	if err := img.Validate(); err != nil {
		return err
	}
	dst := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for row := 0; row < img.Height; row++ {
		offset := row * dst.Stride
		for col := 0; col < img.Width; col++ {
			label := img.At(row, col)
			if label < 0 || label > MaxLabel {
				return errors.Errorf("label %d at row %d, col %d does not fit into 16 bits", label, row, col)
			}
			binary.BigEndian.PutUint16(dst.Pix[offset+2*col:], uint16(label))
		}
	}
	err := tiff.Encode(w, dst, &tiff.Options{Compression: tiff.Deflate})
	if err != nil {
		return errors.Wrap(err, "Can't encode TIFF")
	}
	return nil
}

// ReadMask reads label image from TIFF file
func ReadMask(path string) (*celltrack.LabelImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open mask %s", path)
	}
	defer f.Close()
	img, err := DecodeMask(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "read mask %s", path)
	}
	return img, nil
}

// WriteMask writes label image to TIFF file
func WriteMask(path string, img *celltrack.LabelImage) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create mask %s", path)
	}
	bw := bufio.NewWriter(f)
	if err := EncodeMask(bw, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "write mask %s", path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "write mask %s", path)
	}
	return errors.Wrapf(f.Close(), "close mask %s", path)
}
