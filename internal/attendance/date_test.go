package attendance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendly/internal/apperr"
)

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d.Weekday())
	assert.True(t, d.Equal(NewDate(2024, time.March, 1)))

	late := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	assert.True(t, DateOf(late).Equal(d))

	_, err = ParseDate("01/03/2024")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	var in struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-03-01"}`), &in))
	assert.True(t, in.Date.Equal(d))
	out, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-01"}`, string(out))

	var scanned Date
	require.NoError(t, scanned.Scan(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, scanned.Equal(d))
	v, err := d.Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", v)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"PRESENT", "absent", " Leave "} {
		_, err := ParseStatus(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"NOT_MARKED", "late", ""} {
		_, err := ParseStatus(s)
		assert.Error(t, err, s)
	}
}
