package interfaces

import (
	"encoding/json"
	"math"
	"testing"

	"dealflow/internal/service/pipeline/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt(t *testing.T) {
	cases := []struct {
		in    string
		valid bool
		value int64
	}{
		{`5000000`, true, 5000000},
		{`"5000000"`, true, 5000000},
		{`" 42 "`, true, 42},
		{`"1,200"`, true, 1200},
		{`"5000000.0"`, true, 5000000},
		{`""`, false, 0},
		{`null`, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			var f FlexInt
			require.NoError(t, json.Unmarshal([]byte(tc.in), &f))
			assert.True(t, f.Present)
			assert.Equal(t, tc.valid, f.Valid)
			assert.Equal(t, tc.value, f.Value)
		})
	}
}

func TestFlexIntRejectsNonIntegers(t *testing.T) {
	for _, in := range []string{`"abc"`, `1.5`, `"2.25"`, `true`, `"9223372036854775808.0"`, `9.3e18`, `-1e19`} {
		var f FlexInt
		assert.Error(t, json.Unmarshal([]byte(in), &f), in)
	}
}

func TestFlexIntRange(t *testing.T) {
	var f FlexInt
	require.NoError(t, json.Unmarshal([]byte(`"-9223372036854775808.0"`), &f))
	assert.Equal(t, int64(math.MinInt64), f.Value)

	require.NoError(t, json.Unmarshal([]byte(`9223372036854775807`), &f))
	assert.Equal(t, int64(math.MaxInt64), f.Value)

	err := json.Unmarshal([]byte(`"9223372036854775808.0"`), &f)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFlexIntAbsentField(t *testing.T) {
	var req struct {
		A FlexInt `json:"a"`
		B FlexInt `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":null}`), &req))
	assert.True(t, req.A.Present)
	assert.False(t, req.B.Present)
	assert.Nil(t, req.A.Ptr())
}

func TestUpdateDealRequestPatch(t *testing.T) {
	var req updateDealRequest
	require.NoError(t, json.Unmarshal([]byte(`{"introducerId":"3","estimatedAmount":null,"progressRate":"","nextActionDate":""}`), &req))
	p := req.patch()

	require.NotNil(t, p.IntroducerID)
	assert.Equal(t, int64(3), **p.IntroducerID)
	require.NotNil(t, p.EstimatedAmount)
	assert.Nil(t, *p.EstimatedAmount)
	assert.Nil(t, p.ProgressRate)
	require.NotNil(t, p.NextActionDate)
	assert.Nil(t, *p.NextActionDate)
	assert.Nil(t, p.Status)
}

func TestSubmitContactRequestCommand(t *testing.T) {
	var req submitContactRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"productName":"A","proposalMenu":"B","representative":"C",
		"introducerId":"7","actionDate":"2024-03-01T10:00:00Z","nextActionDate":"2024-03-05"}`), &req))
	cmd := req.command()

	require.NotNil(t, cmd.IntroducerID)
	assert.Equal(t, int64(7), *cmd.IntroducerID)
	assert.Equal(t, domain.MustParseDate("2024-03-01"), cmd.ActionDate)
	require.NotNil(t, cmd.NextActionDate)
	assert.Equal(t, "2024-03-05", cmd.NextActionDate.String())
	assert.Nil(t, cmd.NextAction)
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, raw := range []string{"", "abc", "0", "-1"} {
		_, err := parseID(raw)
		assert.ErrorIs(t, err, domain.ErrNotFound, raw)
	}
}
