package finalize

import (
	"bytes"
	"encoding/csv"
	"math"
	"strconv"
	"time"

	"github.com/vytor/gazetest/internal/models"
)

// ReactionLogCSV renders results as "round,reactionTime,result" rows with
// acertado/fallado tokens.
func ReactionLogCSV(results []models.RoundResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"round", "reactionTime", "result"}); err != nil {
		return "", err
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Round),
			strconv.FormatInt(r.ReactionTimeMs, 10),
			string(r.Outcome),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Summarize counts outcomes and rounds the session duration to whole seconds.
func Summarize(sessionID string, results []models.RoundResult, startedAt, finishedAt time.Time) models.SessionSummary {
	s := models.SessionSummary{SessionID: sessionID}
	for _, r := range results {
		if r.Correct() {
			s.CorrectCount++
		} else {
			s.ErrorCount++
		}
	}
	if !startedAt.IsZero() && finishedAt.After(startedAt) {
		s.DurationSec = math.Round(finishedAt.Sub(startedAt).Seconds())
	}
	return s
}
