package samples

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/vytor/gazetest/internal/models"
)

var csvHeader = []string{"x", "y", "t"}

// EncodeCSV writes samples as "x,y,t" rows: fractional coordinates and Unix
// milliseconds.
func EncodeCSV(w io.Writer, samples []models.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatFloat(s.X, 'f', -1, 64),
			strconv.FormatFloat(s.Y, 'f', -1, 64),
			strconv.FormatInt(s.T.UnixMilli(), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV parses a file written by EncodeCSV.
func DecodeCSV(r io.Reader) ([]models.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return []models.Sample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sample csv header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected sample csv header %v", header)
		}
	}

	out := []models.Sample{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read sample csv line %d: %w", line, err)
		}
		x, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad x %q", line, rec[0])
		}
		y, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad y %q", line, rec[1])
		}
		ms, err := strconv.ParseInt(rec[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad t %q", line, rec[2])
		}
		out = append(out, models.Sample{X: x, Y: y, T: time.UnixMilli(ms)})
	}
	return out, nil
}
