package scenario

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// readCSV parses a two-column time,value series. A non-numeric first
// row is treated as a header and skipped.
func readCSV(path string) ([]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading observations: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parsing observations csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("observations csv %s is empty", path)
	}

	start := 0
	if _, err := strconv.ParseFloat(rows[0][0], 64); err != nil {
		start = 1
	}

	times := make([]float64, 0, len(rows)-start)
	values := make([]float64, 0, len(rows)-start)
	for i, row := range rows[start:] {
		t, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("observations csv row %d: bad time %q", i+start+1, row[0])
		}
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("observations csv row %d: bad value %q", i+start+1, row[1])
		}
		times = append(times, t)
		values = append(values, v)
	}
	return times, values, nil
}
