package celltrack

import (
	"math"
	"sort"
)

// gridIndex is a uniform bucket grid over instance bounding boxes. It keeps
// candidate lookups near-linear in the number of instances instead of scanning
// every pair of two frames.
type gridIndex struct {
	cellSize int
	cells    map[[2]int][]int
}

func newGridIndex(cellSize int) *gridIndex {
	if cellSize < 1 {
		cellSize = 1
	}
	return &gridIndex{
		cellSize: cellSize,
		cells:    make(map[[2]int][]int),
	}
}

// newInstanceGrid indexes all instances of the set by bounding box. Cell size
// follows the mean instance extent so every box touches a handful of cells.
func newInstanceGrid(set *InstanceSet, minCell int) *gridIndex {
	cellSize := minCell
	if set.Len() > 0 {
		total := 0
		for _, inst := range set.Instances {
			total += maxInt(inst.BBox.Width(), inst.BBox.Height())
		}
		cellSize = maxInt(cellSize, total/set.Len())
	}
	grid := newGridIndex(cellSize)
	for i, inst := range set.Instances {
		grid.insert(i, inst.BBox)
	}
	return grid
}

func (grid *gridIndex) cellOf(row, col int) (int, int) {
	return floorDiv(row, grid.cellSize), floorDiv(col, grid.cellSize)
}

func (grid *gridIndex) insert(idx int, box BBox) {
	r0, c0 := grid.cellOf(box.MinRow, box.MinCol)
	r1, c1 := grid.cellOf(box.MaxRow, box.MaxCol)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			key := [2]int{r, c}
			grid.cells[key] = append(grid.cells[key], idx)
		}
	}
}

// query returns sorted unique indices of boxes sharing a grid cell with given box
func (grid *gridIndex) query(box BBox) []int {
	r0, c0 := grid.cellOf(box.MinRow, box.MinCol)
	r1, c1 := grid.cellOf(box.MaxRow, box.MaxCol)
	seen := make(map[int]struct{})
	result := make([]int, 0)
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			for _, idx := range grid.cells[[2]int{r, c}] {
				if _, ok := seen[idx]; ok {
					continue
				}
				seen[idx] = struct{}{}
				result = append(result, idx)
			}
		}
	}
	sort.Ints(result)
	return result
}

// queryRadius returns candidates whose boxes may lie within radius of the point
func (grid *gridIndex) queryRadius(center Point, radius float64) []int {
	box := BBox{
		MinRow: int(math.Floor(center.Y - radius)),
		MinCol: int(math.Floor(center.X - radius)),
		MaxRow: int(math.Ceil(center.Y + radius)),
		MaxCol: int(math.Ceil(center.X + radius)),
	}
	return grid.query(box)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
