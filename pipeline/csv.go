package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"downtime/ml"
)

// ReadTable parses CSV with a header row. A leading UTF-8 or UTF-16 byte
// order mark is honoured and stripped.
func ReadTable(r io.Reader) (*ml.Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ml.Error{Kind: ml.KindIO, Message: "uploaded file is empty"}
	}
	if err != nil {
		return nil, ml.WrapError(ml.KindIO, err, "read CSV header")
	}

	table := &ml.Table{Columns: make([]string, len(header))}
	for i, name := range header {
		table.Columns[i] = strings.TrimSpace(name)
	}
	if len(table.Columns) == 1 && table.Columns[0] == "" {
		return nil, &ml.Error{Kind: ml.KindIO, Message: "uploaded file has no columns"}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ml.WrapError(ml.KindIO, err, "read CSV row %d", len(table.Rows)+1)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

func WriteTable(w io.Writer, table *ml.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return err
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}
