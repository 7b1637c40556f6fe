package finalize_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/gazetest/internal/finalize"
	"github.com/vytor/gazetest/internal/models"
)

func TestReactionLogCSV(t *testing.T) {
	out, err := finalize.ReactionLogCSV([]models.RoundResult{
		{Round: 1, ReactionTimeMs: 1500, Outcome: models.OutcomeIncorrect},
		{Round: 2, ReactionTimeMs: 930, Outcome: models.OutcomeCorrect},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "round,reactionTime,result", lines[0])
	assert.Equal(t, "1,1500,fallado", lines[1])
	assert.Equal(t, "2,930,acertado", lines[2])
}

func TestReactionLogCSV_Empty(t *testing.T) {
	out, err := finalize.ReactionLogCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "round,reactionTime,result\n", out)
}

func TestSummarize(t *testing.T) {
	results := []models.RoundResult{
		{Round: 1, Outcome: models.OutcomeCorrect},
		{Round: 2, Outcome: models.OutcomeIncorrect},
		{Round: 3, Outcome: models.OutcomeCorrect},
	}
	s := finalize.Summarize("s", results, start, start.Add(12499*time.Millisecond))
	assert.Equal(t, 2, s.CorrectCount)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, len(results), s.CorrectCount+s.ErrorCount)
	assert.Equal(t, 12.0, s.DurationSec)

	s = finalize.Summarize("s", nil, time.Time{}, start)
	assert.Zero(t, s.DurationSec)
	assert.Zero(t, s.CorrectCount+s.ErrorCount)
}

func TestRoundPath(t *testing.T) {
	assert.Equal(t, "abc/round_3.csv", finalize.RoundPath("abc", 3))
}
