package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/repository"
	"github.com/vytor/gazetest/internal/repository/sqlite"
	"github.com/vytor/gazetest/internal/testutil"
)

type ResultRepositorySuite struct {
	suite.Suite
	db       *sql.DB
	sessions repository.SessionRepository
	repo     repository.ResultRepository
}

func (s *ResultRepositorySuite) SetupTest() {
	s.db = testutil.NewTestDB(s.T())
	s.sessions = sqlite.NewSessionRepository(s.db)
	s.repo = sqlite.NewResultRepository(s.db)
	s.Require().NoError(s.sessions.Insert(context.Background(), sampleSession("s1", "p1", time.Now())))
}

func (s *ResultRepositorySuite) TearDownTest() {
	testutil.MustClose(s.T(), s.db)
}

func (s *ResultRepositorySuite) TestRoundDataUpsertIsIdempotent() {
	ctx := context.Background()
	rd := models.RoundData{
		SessionID:   "s1",
		RoundNumber: 1,
		Placements:  []models.Placement{{StimulusID: "a", Top: 0.1, Left: 0.2, Width: 0.1, Height: 0.25}},
		CSVPath:     "s1/round_1.csv",
		SampleCount: 12,
	}
	s.Require().NoError(s.repo.UpsertRoundData(ctx, rd))
	rd.SampleCount = 13
	s.Require().NoError(s.repo.UpsertRoundData(ctx, rd))

	all, err := s.repo.ListRoundData(ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Assert().Equal(13, all[0].SampleCount)
	s.Require().Len(all[0].Placements, 1)
	s.Assert().InDelta(0.2, all[0].Placements[0].Left, 1e-9)

	got, err := s.repo.GetRoundData(ctx, "s1", 1)
	s.Require().NoError(err)
	s.Assert().Equal("s1/round_1.csv", got.CSVPath)

	_, err = s.repo.GetRoundData(ctx, "s1", 2)
	s.Assert().ErrorIs(err, sql.ErrNoRows)
}

func (s *ResultRepositorySuite) TestRoundDataOrdered() {
	ctx := context.Background()
	for _, n := range []int{3, 1, 2} {
		s.Require().NoError(s.repo.UpsertRoundData(ctx, models.RoundData{SessionID: "s1", RoundNumber: n}))
	}
	all, err := s.repo.ListRoundData(ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	for i, rd := range all {
		s.Assert().Equal(i+1, rd.RoundNumber)
	}
}

func (s *ResultRepositorySuite) TestRoundDataRequiresSession() {
	err := s.repo.UpsertRoundData(context.Background(), models.RoundData{SessionID: "ghost", RoundNumber: 1})
	s.Assert().Error(err)
}

func (s *ResultRepositorySuite) TestSummary() {
	ctx := context.Background()
	_, err := s.repo.GetSummary(ctx, "s1")
	s.Assert().ErrorIs(err, sql.ErrNoRows)

	s.Require().NoError(s.repo.UpsertSummary(ctx, models.SessionSummary{SessionID: "s1", DurationSec: 42, CorrectCount: 3, ErrorCount: 1}))
	s.Require().NoError(s.repo.UpsertSummary(ctx, models.SessionSummary{SessionID: "s1", DurationSec: 43, CorrectCount: 3, ErrorCount: 1}))

	got, err := s.repo.GetSummary(ctx, "s1")
	s.Require().NoError(err)
	s.Assert().Equal(43.0, got.DurationSec)
	s.Assert().Equal(3, got.CorrectCount)
	s.Assert().Equal(1, got.ErrorCount)
}

func (s *ResultRepositorySuite) TestReactionLog() {
	ctx := context.Background()
	csv := "round,reactionTime,result\n1,812,acertado\n"
	s.Require().NoError(s.repo.UpsertReactionLog(ctx, models.ReactionLog{SessionID: "s1", CSV: csv, Rounds: 1}))

	got, err := s.repo.GetReactionLog(ctx, "s1")
	s.Require().NoError(err)
	s.Assert().Equal(csv, got.CSV)
	s.Assert().Equal(1, got.Rounds)
}

func TestResultRepositorySuite(t *testing.T) {
	suite.Run(t, new(ResultRepositorySuite))
}
