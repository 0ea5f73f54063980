package application

import (
	"testing"

	"dealflow/internal/service/pipeline/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAttentionRule(t *testing.T) {
	rule := MustAttentionRule(DefaultAttentionExpr)

	cases := []struct {
		name   string
		offset *int
		want   bool
	}{
		{"no date", nil, false},
		{"long overdue", intPtr(-30), true},
		{"yesterday", intPtr(-1), true},
		{"today", intPtr(0), true},
		{"in three days", intPtr(3), true},
		{"in four days", intPtr(4), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			deal := &domain.Deal{Status: domain.StatusProposed, Priority: domain.PriorityMedium}
			if tc.offset != nil {
				deal.NextActionDate = domain.DatePtr(testToday.AddDays(*tc.offset))
			}
			got, err := rule.Matches(deal, testToday)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCustomAttentionRule(t *testing.T) {
	rule, err := NewAttentionRule(`days_until_due <= 7 && status != "won" && status != "lost" && (priority == "high" || progress_rate < 50)`)
	require.NoError(t, err)

	due := domain.DatePtr(testToday.AddDays(5))
	got, err := rule.Matches(&domain.Deal{NextActionDate: due, Status: domain.StatusProposed, Priority: domain.PriorityHigh, ProgressRate: 80}, testToday)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = rule.Matches(&domain.Deal{NextActionDate: due, Status: domain.StatusWon, Priority: domain.PriorityHigh}, testToday)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = rule.Matches(&domain.Deal{NextActionDate: due, Status: domain.StatusProposed, Priority: domain.PriorityLow, ProgressRate: 80}, testToday)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestAttentionRuleRejectsBadExpressions(t *testing.T) {
	_, err := NewAttentionRule("days_until_due +")
	assert.Error(t, err)

	_, err = NewAttentionRule("days_until_due + 1")
	assert.Error(t, err)

	_, err = NewAttentionRule("unknown_var < 3")
	assert.Error(t, err)
}

func intPtr(v int) *int { return &v }
