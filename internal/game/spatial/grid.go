// Package spatial provides cache-efficient spatial data structures for
// broad-phase collision detection and ranking.
//
// Structures use preallocated slices with integer indices (not pointers)
// to minimize GC pressure and maximize cache locality.
package spatial

import (
	"math"
)

// SpatialGrid provides O(1) average spatial queries via fixed-size cells
// over a world rectangle that starts at (originX, originY). Coordinates
// outside the rectangle are clamped into the border cells.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col])
type SpatialGrid struct {
	originX, originY float64
	cellSize         float64
	invCellSize      float64 // 1/cellSize for faster division
	cols, rows       int
	cells            [][]uint32 // cells[row*cols+col] = list of entity indices
	scratch          []uint32   // reusable buffer for query results
}

// NewSpatialGrid creates a grid covering [minX, minX+width] × [minY, minY+height].
// cellSize should be at least the largest query radius.
// maxEntities is used to preallocate cell capacity.
func NewSpatialGrid(minX, minY, width, height, cellSize float64, maxEntities int) *SpatialGrid {
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntities / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &SpatialGrid{
		originX:     minX,
		originY:     minY,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *SpatialGrid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

func (g *SpatialGrid) col(x float64) int {
	c := int(math.Floor((x - g.originX) * g.invCellSize))
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *SpatialGrid) row(y float64) int {
	r := int(math.Floor((y - g.originY) * g.invCellSize))
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// Insert adds an entity at position (x, y).
// The entityID should be the index into your entity slice.
func (g *SpatialGrid) Insert(entityID uint32, x, y float64) {
	idx := g.row(y)*g.cols + g.col(x)
	g.cells[idx] = append(g.cells[idx], entityID)
}

// QueryRadius returns all entity IDs potentially within radius of (cx, cy).
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// The candidates may include entities outside the radius; the caller
// performs the precise distance check (narrow phase).
func (g *SpatialGrid) QueryRadius(cx, cy, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol, maxCol := g.col(cx-radius), g.col(cx+radius)
	minRow, maxRow := g.row(cy-radius), g.row(cy+radius)

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// QueryCell returns all entity IDs in the cell containing (x, y).
func (g *SpatialGrid) QueryCell(x, y float64) []uint32 {
	return g.cells[g.row(y)*g.cols+g.col(x)]
}

// Stats returns grid statistics for debugging/profiling.
func (g *SpatialGrid) Stats() GridStats {
	var totalEntities, maxInCell, nonEmpty int
	for _, cell := range g.cells {
		count := len(cell)
		totalEntities += count
		if count > maxInCell {
			maxInCell = count
		}
		if count > 0 {
			nonEmpty++
		}
	}

	avgPerCell := 0.0
	if nonEmpty > 0 {
		avgPerCell = float64(totalEntities) / float64(nonEmpty)
	}

	return GridStats{
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntities:  totalEntities,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avgPerCell,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	TotalCells     int
	NonEmptyCells  int
	TotalEntities  int
	MaxInCell      int
	AvgPerNonEmpty float64
}

// Dimensions returns the grid dimensions.
func (g *SpatialGrid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
