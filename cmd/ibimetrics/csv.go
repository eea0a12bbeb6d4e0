package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chrissnell/ibimetrics/internal/ibi"
)

// readSeriesFile loads a time,value CSV file
func readSeriesFile(path string) (ibi.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return ibi.Series{}, err
	}
	defer f.Close()

	s, err := readSeries(f)
	if err != nil {
		return ibi.Series{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// readSeries parses CSV rows of time,value. A first row that does not parse
// as numbers is treated as a header. Blank lines and lines starting with #
// are skipped.
func readSeries(r io.Reader) (ibi.Series, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var times, values []float64
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ibi.Series{}, err
		}

		t, terr := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		v, verr := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if terr != nil || verr != nil {
			if row == 1 {
				continue
			}
			return ibi.Series{}, fmt.Errorf("row %d: invalid number in %q", row, strings.Join(record, ","))
		}
		times = append(times, t)
		values = append(values, v)
	}

	return ibi.NewSeries(times, values)
}

// readPair loads the reference and candidate files of one recording
func readPair(referencePath, candidatePath string) (ibi.Series, ibi.Series, error) {
	ref, err := readSeriesFile(referencePath)
	if err != nil {
		return ibi.Series{}, ibi.Series{}, fmt.Errorf("reference: %w", err)
	}
	cand, err := readSeriesFile(candidatePath)
	if err != nil {
		return ibi.Series{}, ibi.Series{}, fmt.Errorf("candidate: %w", err)
	}
	return ref, cand, nil
}
