package celltrack

import (
	"sort"

	"github.com/arthurkushman/go-hungarian"
)

// hungarianMatching finds assignment maximizing total similarity over existing
// edges. Similarity of an edge is 2 - cost, so any edge is preferred to no
// edge at all; missing edges have zero similarity and are never returned.
func hungarianMatching(graph *TransitionGraph) [][2]int {
	if len(graph.Edges) == 0 {
		return [][2]int{}
	}
	rows := make([]int, 0)
	rowIndex := make(map[int]int)
	cols := make([]int, 0)
	colIndex := make(map[int]int)
	for _, edge := range graph.Edges {
		if _, ok := rowIndex[edge.Prev]; !ok {
			rowIndex[edge.Prev] = len(rows)
			rows = append(rows, edge.Prev)
		}
		if _, ok := colIndex[edge.Next]; !ok {
			colIndex[edge.Next] = len(cols)
			cols = append(cols, edge.Next)
		}
	}

	// Rectangular matrix - pad to make it square. Padding is done with 0.0 values (no edge)
	paddedSize := maxInt(len(rows), len(cols))
	paddedMatrix := make([][]float64, paddedSize)
	for i := 0; i < paddedSize; i++ {
		paddedMatrix[i] = make([]float64, paddedSize)
	}
	for _, edge := range graph.Edges {
		paddedMatrix[rowIndex[edge.Prev]][colIndex[edge.Next]] = 2.0 - edge.Cost
	}

	assignmentsMap := hungarian.SolveMax(paddedMatrix)
	pairs := make([][2]int, 0, len(assignmentsMap))
	for rowIdx, rowMap := range assignmentsMap {
		if rowIdx >= len(rows) {
			continue
		}
		for colIdx := range rowMap {
			if colIdx >= len(cols) {
				continue
			}
			prevLabel, nextLabel := rows[rowIdx], cols[colIdx]
			if _, ok := graph.Edge(prevLabel, nextLabel); !ok {
				continue
			}
			pairs = append(pairs, [2]int{prevLabel, nextLabel})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return dedupePairs(pairs)
}

// dedupePairs keeps first pair of every previous and next label. The solver
// should never return more than one, but the matching must stay one to one.
func dedupePairs(pairs [][2]int) [][2]int {
	seenPrev := make(map[int]struct{}, len(pairs))
	seenNext := make(map[int]struct{}, len(pairs))
	result := pairs[:0]
	for _, pair := range pairs {
		if _, ok := seenPrev[pair[0]]; ok {
			continue
		}
		if _, ok := seenNext[pair[1]]; ok {
			continue
		}
		seenPrev[pair[0]] = struct{}{}
		seenNext[pair[1]] = struct{}{}
		result = append(result, pair)
	}
	return result
}
