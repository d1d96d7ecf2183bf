package ctcio

import (
	"bytes"
	"image"
	"path/filepath"
	"testing"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func testImage(t *testing.T) *celltrack.LabelImage {
	t.Helper()
	img, err := celltrack.NewLabelImageFromRows([][]int32{
		{0, 0, 1, 1},
		{0, 300, 1, 1},
		{65535, 300, 0, 0},
	})
	require.NoError(t, err)
	return img
}

func TestEncodeDecodeMask(t *testing.T) {
	img := testImage(t)
	var buf bytes.Buffer
	require.NoError(t, EncodeMask(&buf, img))

	decoded, err := DecodeMask(&buf)
	require.NoError(t, err)
	assert.Equal(t, img, decoded)
}

func TestDecodeMask8Bit(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 2))
	gray.Pix = []uint8{0, 1, 2, 3, 4, 255}
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, gray, nil))

	decoded, err := DecodeMask(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Width)
	assert.Equal(t, 2, decoded.Height)
	assert.Equal(t, []int32{0, 1, 2, 3, 4, 255}, decoded.Pix)
}

func TestDecodeMaskUnsupported(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, rgba, nil))

	_, err := DecodeMask(&buf)
	assert.ErrorIs(t, err, ErrUnsupportedMask)
}

func TestEncodeMaskLabelOverflow(t *testing.T) {
	img := celltrack.NewLabelImage(2, 2)
	img.Set(1, 1, MaxLabel+1)
	var buf bytes.Buffer
	assert.Error(t, EncodeMask(&buf, img))
}

func TestReadWriteMask(t *testing.T) {
	img := testImage(t)
	path := filepath.Join(t.TempDir(), "mask000.tif")
	require.NoError(t, WriteMask(path, img))

	read, err := ReadMask(path)
	require.NoError(t, err)
	assert.Equal(t, img, read)

	_, err = ReadMask(filepath.Join(t.TempDir(), "missing.tif"))
	assert.Error(t, err)
}
