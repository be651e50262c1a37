package ml

import (
	"fmt"
	"sort"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// Encoder turns raw rows into feature vectors laid out as
// [Days_Since_Start, sensors..., one-hot Machine_ID...]. Its state is frozen
// by FitTransform and only read afterwards.
type Encoder struct {
	MinDate    time.Time `json:"min_date"`
	Categories []string  `json:"categories"`
	Schema     Schema    `json:"schema"`
}

// FitTransform learns the reference date and machine categories from table
// and returns the encoded feature matrix with binary Downtime labels.
func (e *Encoder) FitTransform(table *Table) ([][]float64, []int, error) {
	if table == nil || len(table.Columns) == 0 {
		return nil, nil, newError(KindSchema, "dataset has no columns")
	}

	names := []string{ColumnDate, ColumnMachineID, ColumnDowntime}
	display := []string{ColumnDate, ColumnMachineID, ColumnDowntime}
	for _, s := range sensors {
		names = append(names, s.Name)
		display = append(display, s.Column)
	}
	positions, err := table.requireColumns(names, display)
	if err != nil {
		return nil, nil, err
	}
	if table.Len() == 0 {
		return nil, nil, newError(KindSchema, "dataset has no rows")
	}
	dateCol, machineCol, downtimeCol := positions[0], positions[1], positions[2]
	sensorCols := positions[3:]

	dates := make([]time.Time, table.Len())
	for i := range table.Rows {
		date, err := parseDate(table.cell(i, dateCol))
		if err != nil {
			return nil, nil, &Error{Kind: KindFormat, Message: fmt.Sprintf("row %d: %v", i+1, err), Fields: []string{ColumnDate}}
		}
		dates[i] = date
	}
	minDate := dates[0]
	for _, d := range dates[1:] {
		if d.Before(minDate) {
			minDate = d
		}
	}

	seen := make(map[string]bool)
	machines := make([]string, table.Len())
	for i := range table.Rows {
		id := table.cell(i, machineCol)
		if id == "" {
			return nil, nil, &Error{Kind: KindFormat, Message: fmt.Sprintf("row %d: %s is empty", i+1, ColumnMachineID), Fields: []string{ColumnMachineID}}
		}
		machines[i] = id
		seen[id] = true
	}
	categories := make([]string, 0, len(seen))
	for id := range seen {
		categories = append(categories, id)
	}
	sort.Strings(categories)

	columns := make([][]float64, len(sensors))
	for j, col := range sensorCols {
		values, err := table.numericColumn(col, sensors[j].Column)
		if err != nil {
			return nil, nil, err
		}
		columns[j] = values
	}

	e.MinDate = minDate
	e.Categories = categories
	e.Schema = buildSchema(categories)

	features := make([][]float64, table.Len())
	labels := make([]int, table.Len())
	for i := range table.Rows {
		sensorValues := make([]float64, len(sensors))
		for j := range sensors {
			sensorValues[j] = columns[j][i]
		}
		vector, err := e.assemble(dates[i], machines[i], sensorValues)
		if err != nil {
			return nil, nil, err
		}
		features[i] = vector
		labels[i] = EncodeLabel(table.cell(i, downtimeCol))
	}
	return features, labels, nil
}

// Transform encodes a single record against the fitted state. A missing date
// falls back to DefaultPredictDate.
func (e *Encoder) Transform(record Record) ([]float64, error) {
	if e == nil || e.Schema.Width() == 0 {
		return nil, newError(KindNotReady, "encoder has not been fitted")
	}
	raw := record.Date
	if raw == "" {
		raw = DefaultPredictDate
	}
	date, err := parseDate(raw)
	if err != nil {
		return nil, &Error{Kind: KindFormat, Message: err.Error(), Fields: []string{ColumnDate}}
	}
	if len(record.Sensors) != len(sensors) {
		return nil, newError(KindSchemaMismatch, "expected %d sensor readings, got %d", len(sensors), len(record.Sensors))
	}
	return e.assemble(date, record.MachineID, record.Sensors)
}

func (e *Encoder) assemble(date time.Time, machineID string, sensorValues []float64) ([]float64, error) {
	pos := sort.SearchStrings(e.Categories, machineID)
	if pos >= len(e.Categories) || e.Categories[pos] != machineID {
		return nil, &Error{
			Kind:    KindUnknownCategory,
			Message: fmt.Sprintf("%s %q was not seen during training", ColumnMachineID, machineID),
			Fields:  []string{ColumnMachineID},
		}
	}

	vector := make([]float64, 0, e.Schema.Width())
	vector = append(vector, float64(daysBetween(e.MinDate, date)))
	vector = append(vector, sensorValues...)
	for i := range e.Categories {
		if i == pos {
			vector = append(vector, 1)
		} else {
			vector = append(vector, 0)
		}
	}
	if len(vector) != e.Schema.Width() {
		return nil, newError(KindSchemaMismatch, "encoded %d features, schema expects %d", len(vector), e.Schema.Width())
	}
	return vector, nil
}

// EncodeLabel maps Machine_Failure to 1 and every other value to 0.
func EncodeLabel(value string) int {
	if value == LabelFailure {
		return 1
	}
	return 0
}

func DecodeLabel(label int) string {
	if label == 1 {
		return LabelFailure
	}
	return LabelNoFailure
}

func buildSchema(categories []string) Schema {
	schema := make(Schema, 0, 1+len(sensors)+len(categories))
	schema = append(schema, FeatureDaysSinceStart)
	schema = append(schema, SensorNames()...)
	for _, c := range categories {
		schema = append(schema, oneHotName(c))
	}
	return schema
}

// daysBetween counts whole days from start to end. Both are UTC midnights, so
// Unix seconds divide evenly; time.Duration would saturate past ~292 years.
func daysBetween(start, end time.Time) int64 {
	return (end.Unix() - start.Unix()) / secondsPerDay
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q does not match DD-MM-YYYY", value)
	}
	return t, nil
}
