package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateAcceptsCommonLayouts(t *testing.T) {
	for _, in := range []string{"2024-03-10", "2024-03-10T23:59:00+09:00", "2024-03-10T08:00:00", "2024/03/10"} {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2024-03-10", d.String(), in)
	}

	_, err := ParseDate("10 March")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestDateArithmetic(t *testing.T) {
	d := NewDate(2024, time.February, 28)
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.Equal(t, -1, d.DaysUntil(d.AddDays(-1)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.True(t, d.Equal(MustParseDate("2024-02-28")))
}

func TestDateOfKeepsLocalCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	late := time.Date(2024, 3, 10, 23, 30, 0, 0, tokyo)
	assert.Equal(t, "2024-03-10", DateOf(late).String())
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		Date Date  `json:"date"`
		Opt  *Date `json:"opt"`
	}
	raw, err := json.Marshal(wrapper{Date: MustParseDate("2024-03-10")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-10","opt":null}`, string(raw))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"date":"","opt":"2024-01-02"}`), &w))
	assert.True(t, w.Date.IsZero())
	require.NotNil(t, w.Opt)
	assert.Equal(t, "2024-01-02", w.Opt.String())

	err = json.Unmarshal([]byte(`{"date":20240310}`), &w)
	assert.Error(t, err)
}
