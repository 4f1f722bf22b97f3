package utils

import (
	"encoding/csv"
	"io"
)

// WriteCSV writes a header row followed by rows. Fields containing commas,
// quotes or line breaks are quoted and inner quotes doubled.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
