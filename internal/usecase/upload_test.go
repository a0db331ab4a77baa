package usecase

import (
	"strings"
	"testing"
	"time"

	"ModelHub/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSeriesCSVSortsByTime(t *testing.T) {
	csv := "date,sales,region\n2024-01-03,30,eu\n2024-01-01,10,eu\n2024-01-02,\"1,020\",eu\n"
	sum, err := ReadSeriesCSV(strings.NewReader(csv), "sales", "", 0)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Rows)
	assert.Equal(t, "date", sum.TimeColumn, "time column guessed")
	assert.Equal(t, []string{"date", "sales", "region"}, sum.Columns)
	assert.Equal(t, []float64{10, 1020, 30}, models.TimeSeries{Points: sum.Data}.Values())
	assert.True(t, sum.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestReadSeriesCSVWithoutTimeColumn(t *testing.T) {
	sum, err := ReadSeriesCSV(strings.NewReader("y\n1\n2\n"), "y", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, sum.Data[1].Timestamp.Sub(sum.Data[0].Timestamp))
	assert.Empty(t, sum.TimeColumn)
}

func TestReadSeriesCSVErrors(t *testing.T) {
	cases := map[string]struct {
		body, target, timeCol string
		maxRows               int
		want                  error
	}{
		"missing target":      {"a,b\n1,2\n", "sales", "", 0, models.ErrInvalidParameter},
		"missing time column": {"a,b\n1,2\n", "a", "when", 0, models.ErrInvalidParameter},
		"not a number":        {"y\nabc\n", "y", "", 0, models.ErrInvalidParameter},
		"bad timestamp":       {"ds,y\nyesterday,1\n", "y", "ds", 0, models.ErrInvalidParameter},
		"duplicate time":      {"ds,y\n2024-01-01,1\n2024-01-01,2\n", "y", "", 0, models.ErrInvalidParameter},
		"no rows":             {"y\n", "y", "", 0, models.ErrEmptyInput},
		"empty file":          {"", "y", "", 0, models.ErrEmptyInput},
		"too many rows":       {"y\n1\n2\n3\n", "y", "", 2, models.ErrInvalidParameter},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadSeriesCSV(strings.NewReader(tc.body), tc.target, tc.timeCol, tc.maxRows)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
