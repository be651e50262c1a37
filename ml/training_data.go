package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Table is an uploaded dataset: a header row and string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex maps canonical column keys to positions. The first column wins
// when two headers fold to the same key.
func (t *Table) ColumnIndex() map[string]int {
	index := make(map[string]int, len(t.Columns))
	for i, name := range t.Columns {
		key := CanonicalKey(name)
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	return index
}

// requireColumns returns the position of every requested column or a
// SchemaError naming the absent ones.
func (t *Table) requireColumns(names []string, display []string) ([]int, error) {
	index := t.ColumnIndex()
	positions := make([]int, len(names))
	var missing []string
	for i, name := range names {
		pos, ok := index[CanonicalKey(name)]
		if !ok {
			missing = append(missing, display[i])
			continue
		}
		positions[i] = pos
	}
	if len(missing) > 0 {
		return nil, &Error{
			Kind:    KindSchema,
			Message: "dataset is missing required columns: " + strings.Join(missing, ", "),
			Fields:  missing,
		}
	}
	return positions, nil
}

func (t *Table) cell(row, col int) string {
	if col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

func isMissing(value string) bool {
	switch strings.ToLower(value) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}

// numericColumn parses one column, filling blank cells with the mean of the
// present values.
func (t *Table) numericColumn(col int, name string) ([]float64, error) {
	values := make([]float64, len(t.Rows))
	sum := 0.0
	present := 0
	for i := range t.Rows {
		raw := t.cell(i, col)
		if isMissing(raw) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &Error{Kind: KindFormat, Message: fmt.Sprintf("row %d: %s value %q is not numeric", i+1, name, raw), Fields: []string{name}}
		}
		values[i] = v
		sum += v
		present++
	}
	if present == 0 {
		return nil, &Error{Kind: KindFormat, Message: fmt.Sprintf("column %s has no numeric values", name), Fields: []string{name}}
	}
	mean := sum / float64(present)
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = mean
		}
	}
	return values, nil
}

// Subset selects rows of features and labels by index.
func Subset(features [][]float64, labels []int, indices []int) ([][]float64, []int) {
	x := make([][]float64, len(indices))
	y := make([]int, len(indices))
	for i, idx := range indices {
		x[i] = features[idx]
		y[i] = labels[idx]
	}
	return x, y
}
