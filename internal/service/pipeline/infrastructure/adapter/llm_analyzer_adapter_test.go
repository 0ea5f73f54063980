package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dealflow/internal/service/pipeline/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMAnalyzerAdapterDisabled(t *testing.T) {
	assert.Nil(t, NewLLMAnalyzerAdapter("", "key", "m", 0, nil))
	assert.Nil(t, NewLLMAnalyzerAdapter("http://llm", "", "m", 0, nil))
}

func TestLLMAnalyzerAdapterAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)

		var input analysisInput
		require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Content), &input))
		assert.Equal(t, "Cloud ERP", input.Deal.ProductName)
		assert.Equal(t, "Second visit", input.ActionLog.Title)

		content := `{"statusAppropriate":true,"progressScore":9,"riskFactors":["budget"],"suggestedNextAction":"Send quote","priority":"high","summary":"Going well"}`
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	}))
	defer srv.Close()

	a := NewLLMAnalyzerAdapter(srv.URL, "secret", "test-model", time.Second, nil)
	got, err := a.Analyze(context.Background(), &domain.ActionLog{Title: "Second visit"}, sampleDeal())
	require.NoError(t, err)

	assert.True(t, got.StatusAppropriate)
	assert.Equal(t, 5, got.ProgressScore)
	assert.Equal(t, []string{"budget"}, got.RiskFactors)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, "Going well", got.Summary)
}

func TestLLMAnalyzerAdapterNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	a := NewLLMAnalyzerAdapter(srv.URL, "secret", "m", time.Second, nil)
	_, err := a.Analyze(context.Background(), &domain.ActionLog{}, sampleDeal())
	assert.Error(t, err)
}

func TestParseAnalysis(t *testing.T) {
	t.Run("code fence and clamping", func(t *testing.T) {
		got, err := ParseAnalysis("```json\n{\"progressScore\":0,\"priority\":\"urgent\",\"suggestedStatus\":\"closed\",\"summary\":\" ok \"}\n```")
		require.NoError(t, err)
		assert.Equal(t, 1, got.ProgressScore)
		assert.Equal(t, domain.PriorityMedium, got.Priority)
		assert.Empty(t, got.SuggestedStatus)
		assert.Equal(t, []string{}, got.RiskFactors)
		assert.Equal(t, "ok", got.Summary)
	})

	t.Run("valid suggested status kept", func(t *testing.T) {
		got, err := ParseAnalysis(`{"progressScore":3,"priority":"low","suggestedStatus":"proposed"}`)
		require.NoError(t, err)
		assert.Equal(t, 3, got.ProgressScore)
		assert.Equal(t, domain.StatusProposed, got.SuggestedStatus)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseAnalysis("I think the deal is fine")
		assert.Error(t, err)
	})
}
