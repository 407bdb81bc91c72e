// Package grid lays out a linear tape on a screen.
package grid

// GetGridCoords returns the column and row of the index-th cell in a grid
// cols cells wide, filled row by row.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// CellOrigin returns the top-left pixel of the index-th cell when every cell
// is size pixels square and separated by gap pixels.
func CellOrigin(index, cols, size, gap int) (px, py int) {
	x, y := GetGridCoords(index, cols)
	return x * (size + gap), y * (size + gap)
}

// Rows returns how many rows are needed to hold n cells.
func Rows(n, cols int) int {
	return (n + cols - 1) / cols
}
