package usecase

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/pkg/util"
)

// time column names tried when the caller does not name one
var timeColumnGuesses = []string{"ds", "date", "timestamp", "time", "datetime"}

// ReadSeriesCSV parses an uploaded CSV into a series of targetCol values.
// Without a usable time column rows are spaced one day apart from the Unix epoch.
// Rows are sorted by time; a repeated timestamp is rejected.
func ReadSeriesCSV(r io.Reader, targetCol, timeCol string, maxRows int) (*models.UploadSummary, error) {
	if targetCol == "" {
		return nil, fmt.Errorf("%w: target_column is required", models.ErrInvalidParameter)
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header", models.ErrEmptyInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", models.ErrInvalidParameter, err)
	}
	columns := append([]string(nil), header...)
	idx := make(map[string]int, len(columns))
	for i, name := range columns {
		idx[strings.TrimSpace(name)] = i
	}

	target, ok := idx[targetCol]
	if !ok {
		return nil, fmt.Errorf("%w: target column '%s' not found in data", models.ErrInvalidParameter, targetCol)
	}
	tcol := -1
	if timeCol != "" {
		i, ok := idx[timeCol]
		if !ok {
			return nil, fmt.Errorf("%w: time column '%s' not found in data", models.ErrInvalidParameter, timeCol)
		}
		tcol = i
	} else {
		for _, guess := range timeColumnGuesses {
			if i, ok := idx[guess]; ok && i != target {
				tcol, timeCol = i, guess
				break
			}
		}
	}

	var points []models.Point
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %v", models.ErrInvalidParameter, line, err)
		}
		if maxRows > 0 && len(points) >= maxRows {
			return nil, fmt.Errorf("%w: more than %d rows", models.ErrInvalidParameter, maxRows)
		}
		v, err := util.ParseFloat(rec[target])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s=%q is not a number", models.ErrInvalidParameter, line, targetCol, rec[target])
		}
		ts := time.Unix(0, 0).UTC().AddDate(0, 0, len(points))
		if tcol >= 0 {
			t, ok := util.ParseTime(rec[tcol])
			if !ok {
				return nil, fmt.Errorf("%w: line %d: %s=%q is not a timestamp", models.ErrInvalidParameter, line, timeCol, rec[tcol])
			}
			ts = t
		}
		points = append(points, models.Point{Timestamp: ts, Value: v})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: csv has no rows", models.ErrEmptyInput)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	series := models.TimeSeries{Points: points}
	if err := series.Validate(); err != nil {
		return nil, err
	}

	return &models.UploadSummary{
		Rows:         len(points),
		TargetColumn: targetCol,
		TimeColumn:   timeCol,
		Columns:      columns,
		Start:        points[0].Timestamp,
		End:          points[len(points)-1].Timestamp,
		Data:         points,
	}, nil
}
