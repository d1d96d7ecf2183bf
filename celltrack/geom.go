package celltrack

import (
	"image"
	"math"
)

// Point is a sub-pixel image coordinate. X is the column, Y is the row.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// BBox is an inclusive pixel bounding box in row/column terms.
type BBox struct {
	MinRow int
	MinCol int
	MaxRow int
	MaxCol int
}

// NewBBoxFrom converts half-open image.Rectangle into inclusive BBox
func NewBBoxFrom(rect image.Rectangle) BBox {
	return BBox{
		MinRow: rect.Min.Y,
		MinCol: rect.Min.X,
		MaxRow: rect.Max.Y - 1,
		MaxCol: rect.Max.X - 1,
	}
}

// Rect returns half-open image.Rectangle for the box
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.MinCol, b.MinRow, b.MaxCol+1, b.MaxRow+1)
}

// Height returns number of rows covered by the box
func (b BBox) Height() int {
	return b.MaxRow - b.MinRow + 1
}

// Width returns number of columns covered by the box
func (b BBox) Width() int {
	return b.MaxCol - b.MinCol + 1
}

// Intersect returns the common part of two boxes. The second value is false
// when boxes do not share a single pixel.
func (b BBox) Intersect(other BBox) (BBox, bool) {
	inter := BBox{
		MinRow: maxInt(b.MinRow, other.MinRow),
		MinCol: maxInt(b.MinCol, other.MinCol),
		MaxRow: minInt(b.MaxRow, other.MaxRow),
		MaxCol: minInt(b.MaxCol, other.MaxCol),
	}
	if inter.MinRow > inter.MaxRow || inter.MinCol > inter.MaxCol {
		return BBox{}, false
	}
	return inter, true
}

// extend grows the box so it covers given pixel
func (b *BBox) extend(row, col int) {
	if row < b.MinRow {
		b.MinRow = row
	}
	if row > b.MaxRow {
		b.MaxRow = row
	}
	if col < b.MinCol {
		b.MinCol = col
	}
	if col > b.MaxCol {
		b.MaxCol = col
	}
}

// union returns the smallest box covering both boxes
func (b BBox) union(other BBox) BBox {
	return BBox{
		MinRow: minInt(b.MinRow, other.MinRow),
		MinCol: minInt(b.MinCol, other.MinCol),
		MaxRow: maxInt(b.MaxRow, other.MaxRow),
		MaxCol: maxInt(b.MaxCol, other.MaxCol),
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}

// overlapIoU calculates Intersection over Union for two pixel sets given their
// areas and the size of their intersection.
func overlapIoU(overlap, areaA, areaB int) float64 {
	if overlap <= 0 {
		return 0.0
	}
	union := areaA + areaB - overlap
	if union <= 0 {
		return 0.0
	}
	return float64(overlap) / float64(union)
}
