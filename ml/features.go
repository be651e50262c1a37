package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	ColumnMachineID    = "Machine_ID"
	ColumnDate         = "Date"
	ColumnAssemblyLine = "Assembly_Line_No"
	ColumnDowntime     = "Downtime"

	FeatureDaysSinceStart = "Days_Since_Start"

	LabelFailure   = "Machine_Failure"
	LabelNoFailure = "No_Failure"

	// DateLayout accepts both "1-2-2021" and "01-02-2021".
	DateLayout         = "2-1-2006"
	DefaultPredictDate = "31-12-2021"
)

type Sensor struct {
	Name   string
	Column string
}

var sensors = []Sensor{
	{Name: "Hydraulic_Pressure", Column: "Hydraulic_Pressure(bar)"},
	{Name: "Coolant_Pressure", Column: "Coolant_Pressure(bar)"},
	{Name: "Air_System_Pressure", Column: "Air_System_Pressure(bar)"},
	{Name: "Coolant_Temperature", Column: "Coolant_Temperature"},
	{Name: "Hydraulic_Oil_Temperature", Column: "Hydraulic_Oil_Temperature(°C)"},
	{Name: "Spindle_Bearing_Temperature", Column: "Spindle_Bearing_Temperature(°C)"},
	{Name: "Spindle_Vibration", Column: "Spindle_Vibration(µm)"},
	{Name: "Tool_Vibration", Column: "Tool_Vibration(µm)"},
	{Name: "Spindle_Speed", Column: "Spindle_Speed(RPM)"},
	{Name: "Voltage", Column: "Voltage(volts)"},
	{Name: "Torque", Column: "Torque(Nm)"},
	{Name: "Cutting", Column: "Cutting(kN)"},
}

// Sensors returns the sensor readings in the order they appear in every
// feature vector.
func Sensors() []Sensor {
	return append([]Sensor(nil), sensors...)
}

func SensorNames() []string {
	names := make([]string, len(sensors))
	for i, s := range sensors {
		names[i] = s.Name
	}
	return names
}

// CanonicalKey folds a column or field name to the key used for lookups:
// NFC-normalized, trimmed, with a trailing "(unit)" suffix removed.
func CanonicalKey(name string) string {
	key := strings.TrimSpace(norm.NFC.String(name))
	if strings.HasSuffix(key, ")") {
		if i := strings.LastIndex(key, "("); i > 0 {
			key = strings.TrimSpace(key[:i])
		}
	}
	return key
}

// Schema is the ordered list of feature names a model was fitted on.
type Schema []string

func (s Schema) Width() int {
	return len(s)
}

func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func oneHotName(category string) string {
	return ColumnMachineID + "_" + category
}

// Record is one raw reading submitted for prediction.
type Record struct {
	MachineID string
	Date      string
	Sensors   []float64
}

// Key identifies a record by value.
func (r Record) Key() string {
	var b strings.Builder
	b.WriteString(r.MachineID)
	b.WriteByte('|')
	b.WriteString(r.Date)
	for _, v := range r.Sensors {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// ParseRecord validates a decoded JSON payload and extracts a Record. Missing
// fields are reported together in a single SchemaError.
func ParseRecord(payload map[string]interface{}) (Record, error) {
	fields := make(map[string]interface{}, len(payload))
	sources := make(map[string]string, len(payload))
	for name, value := range payload {
		key := CanonicalKey(name)
		if other, exists := sources[key]; exists {
			first, second := other, name
			if second < first {
				first, second = second, first
			}
			return Record{}, &Error{
				Kind:    KindFormat,
				Message: fmt.Sprintf("fields %q and %q name the same input", first, second),
				Fields:  []string{first, second},
			}
		}
		sources[key] = name
		fields[key] = value
	}

	var missing []string
	machine, ok := fields[ColumnMachineID]
	if !ok || machine == nil {
		missing = append(missing, ColumnMachineID)
	}
	for _, s := range sensors {
		if v, ok := fields[s.Name]; !ok || v == nil {
			missing = append(missing, s.Column)
		}
	}
	if len(missing) > 0 {
		return Record{}, &Error{
			Kind:    KindSchema,
			Message: fmt.Sprintf("input must contain %s and all required features; missing: %s", ColumnMachineID, strings.Join(missing, ", ")),
			Fields:  missing,
		}
	}

	record := Record{Sensors: make([]float64, len(sensors))}
	id, ok := machine.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return Record{}, newError(KindFormat, "%s must be a non-empty string", ColumnMachineID)
	}
	record.MachineID = strings.TrimSpace(id)

	if date, ok := fields[ColumnDate]; ok && date != nil {
		str, ok := date.(string)
		if !ok {
			return Record{}, newError(KindFormat, "%s must be a string in DD-MM-YYYY format", ColumnDate)
		}
		record.Date = strings.TrimSpace(str)
	}

	for i, s := range sensors {
		value, err := toFloat(fields[s.Name])
		if err != nil {
			return Record{}, &Error{Kind: KindFormat, Message: fmt.Sprintf("%s must be numeric", s.Column), Fields: []string{s.Column}, Err: err}
		}
		record.Sensors[i] = value
	}
	return record, nil
}

// toFloat accepts JSON numbers and numeric strings. NaN and infinities are
// rejected.
func toFloat(value interface{}) (float64, error) {
	v, err := rawFloat(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v is not finite", value)
	}
	return v, nil
}

func rawFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported value %v", value)
	}
}
