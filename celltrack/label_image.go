package celltrack

import "github.com/pkg/errors"

// LabelImage is a row-major integer labeled mask. Zero is background, every
// positive value is one instance; labels are meaningful only inside one frame.
type LabelImage struct {
	Width  int
	Height int
	Pix    []int32
}

// NewLabelImage allocates zeroed image of given size
func NewLabelImage(width, height int) *LabelImage {
	return &LabelImage{
		Width:  width,
		Height: height,
		Pix:    make([]int32, width*height),
	}
}

// NewLabelImageFromRows builds an image from rows of labels. All rows must have the same length.
func NewLabelImageFromRows(rows [][]int32) (*LabelImage, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyImage
	}
	width := len(rows[0])
	img := NewLabelImage(width, len(rows))
	for r, row := range rows {
		if len(row) != width {
			return nil, errors.Errorf("row %d has %d columns, expected %d", r, len(row), width)
		}
		copy(img.Pix[r*width:(r+1)*width], row)
	}
	return img, nil
}

// At returns label at row/col
func (img *LabelImage) At(row, col int) int32 {
	return img.Pix[row*img.Width+col]
}

// Set sets label at row/col
func (img *LabelImage) Set(row, col int, label int32) {
	img.Pix[row*img.Width+col] = label
}

// SameSize reports whether both images share dimensions
func (img *LabelImage) SameSize(other *LabelImage) bool {
	return img.Width == other.Width && img.Height == other.Height
}

// Clone returns deep copy of the image
func (img *LabelImage) Clone() *LabelImage {
	cp := &LabelImage{
		Width:  img.Width,
		Height: img.Height,
		Pix:    make([]int32, len(img.Pix)),
	}
	copy(cp.Pix, img.Pix)
	return cp
}

// Validate checks structural soundness of the image. It does not check labels,
// those are verified during extraction where every pixel is visited anyway.
func (img *LabelImage) Validate() error {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return ErrEmptyImage
	}
	if len(img.Pix) != img.Width*img.Height {
		return errors.Errorf("pixel buffer holds %d values, expected %dx%d", len(img.Pix), img.Width, img.Height)
	}
	return nil
}
