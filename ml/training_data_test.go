package ml

import "testing"

func TestTableColumnIndex(t *testing.T) {
	table := &Table{Columns: []string{"Date", "Torque(Nm)", "Torque", "Hydraulic_Oil_Temperature(°C)"}}
	index := table.ColumnIndex()
	if index["Torque"] != 1 {
		t.Fatalf("expected first Torque column to win, got %d", index["Torque"])
	}
	if index["Hydraulic_Oil_Temperature"] != 3 {
		t.Fatalf("expected unit suffix to be ignored, got %v", index)
	}
}

func TestSubset(t *testing.T) {
	features := [][]float64{{0}, {1}, {2}, {3}}
	labels := []int{0, 1, 0, 1}
	x, y := Subset(features, labels, []int{3, 1})
	if len(x) != 2 || x[0][0] != 3 || y[1] != 1 {
		t.Fatalf("unexpected subset: %v %v", x, y)
	}
}
