// Package fixtures builds small machine downtime datasets for tests.
package fixtures

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"downtime/ml"
)

const (
	MachineA = "Makino-L1-Unit1-2013"
	MachineB = "Makino-L2-Unit1-2015"
)

// Table returns rows dated one day apart from 01-12-2021. Even rows are
// failures and read 50 units higher on every sensor.
func Table(rows int) *ml.Table {
	columns := []string{ml.ColumnDate, ml.ColumnMachineID, ml.ColumnAssemblyLine}
	for _, s := range ml.Sensors() {
		columns = append(columns, s.Column)
	}
	columns = append(columns, ml.ColumnDowntime)

	start := time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC)
	table := &ml.Table{Columns: columns}
	for i := 0; i < rows; i++ {
		failure := i%2 == 0
		machine := MachineA
		if i%4 >= 2 {
			machine = MachineB
		}
		row := []string{start.AddDate(0, 0, i).Format("02-01-2006"), machine, "Shopfloor-L1"}
		for _, value := range SensorValues(failure) {
			row = append(row, strconv.FormatFloat(value+float64(i%3)*0.1, 'f', 2, 64))
		}
		label := ml.LabelNoFailure
		if failure {
			label = ml.LabelFailure
		}
		table.Rows = append(table.Rows, append(row, label))
	}
	return table
}

// CSV renders Table(rows) as CSV text.
func CSV(rows int) []byte {
	table := Table(rows)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(table.Columns)
	w.WriteAll(table.Rows)
	return buf.Bytes()
}

func SensorValues(failure bool) []float64 {
	values := make([]float64, len(ml.Sensors()))
	for j := range values {
		values[j] = 10.0 + float64(j)
		if failure {
			values[j] += 50
		}
	}
	return values
}

// Payload returns a prediction request body keyed by unit-suffixed column
// names, as clients of the HTTP API send it.
func Payload(machine string, failure bool) map[string]interface{} {
	payload := map[string]interface{}{
		ml.ColumnMachineID: machine,
		ml.ColumnDate:      "15-12-2021",
	}
	values := SensorValues(failure)
	for j, s := range ml.Sensors() {
		payload[s.Column] = values[j]
	}
	return payload
}
