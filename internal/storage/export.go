package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/cropsim/internal/dynamo"
)

type ExportData struct {
	Run     RunMetadata          `json:"run"`
	Times   []float64            `json:"times"`
	Columns map[string][]float64 `json:"columns"`
	Errors  []string             `json:"errors,omitempty"`
}

func ExportJSON(w io.Writer, meta RunMetadata, result *dynamo.Result) error {
	data := ExportData{
		Run:     prepare(meta, result),
		Times:   result.Times,
		Columns: result.Columns,
	}
	for _, err := range result.Errors {
		data.Errors = append(data.Errors, err.Error())
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV writes one row per time point: the time index followed by every
// result column in name order.
func ExportCSV(w io.Writer, result *dynamo.Result) error {
	cw := csv.NewWriter(w)

	header := append([]string{"time"}, result.Names...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, t := range result.Times {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatFloat(t, 'g', -1, 64))
		for _, name := range result.Names {
			row = append(row, strconv.FormatFloat(result.Columns[name][i], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV is the inverse of ExportCSV.
func ReadCSV(r io.Reader) (*dynamo.Result, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty results file")
		}
		return nil, err
	}
	if len(header) == 0 || header[0] != "time" {
		return nil, fmt.Errorf("results file must start with a time column, got %v", header)
	}

	res := &dynamo.Result{
		Names:   header[1:],
		Columns: make(map[string][]float64, len(header)-1),
		Metrics: make(map[string]float64),
	}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		vals := make([]float64, len(row))
		for i, field := range row {
			if vals[i], err = strconv.ParseFloat(field, 64); err != nil {
				line, _ := cr.FieldPos(i)
				return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
			}
		}
		res.Times = append(res.Times, vals[0])
		for i, name := range res.Names {
			res.Columns[name] = append(res.Columns[name], vals[i+1])
		}
	}
	return res, nil
}
