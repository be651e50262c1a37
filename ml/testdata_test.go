package ml

import (
	"strconv"
	"time"
)

const (
	machineA = "Makino-L1-Unit1-2013"
	machineB = "Makino-L2-Unit1-2015"
)

// toyTable builds rows dated one day apart from 01-12-2021, alternating
// between failure and no-failure, with failures reading 50 units higher on
// every sensor.
func toyTable(rows int) *Table {
	columns := []string{ColumnDate, ColumnMachineID, ColumnAssemblyLine}
	for _, s := range Sensors() {
		columns = append(columns, s.Column)
	}
	columns = append(columns, ColumnDowntime)

	start := time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC)
	table := &Table{Columns: columns}
	for i := 0; i < rows; i++ {
		failure := i%2 == 0
		machine := machineA
		if i%4 >= 2 {
			machine = machineB
		}
		row := []string{start.AddDate(0, 0, i).Format("02-01-2006"), machine, "Shopfloor-L1"}
		for j := range sensors {
			base := 10.0 + float64(j)
			if failure {
				base += 50
			}
			row = append(row, strconv.FormatFloat(base+float64(i%3)*0.1, 'f', 2, 64))
		}
		label := LabelNoFailure
		if failure {
			label = LabelFailure
		}
		table.Rows = append(table.Rows, append(row, label))
	}
	return table
}

func toyRecord(machine string, failure bool) Record {
	values := make([]float64, len(sensors))
	for j := range values {
		values[j] = 10.0 + float64(j)
		if failure {
			values[j] += 50
		}
	}
	return Record{MachineID: machine, Date: "15-12-2021", Sensors: values}
}
