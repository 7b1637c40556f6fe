package services_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vytor/gazetest/internal/coords"
	"github.com/vytor/gazetest/internal/errors"
	"github.com/vytor/gazetest/internal/models"
	"github.com/vytor/gazetest/internal/services"
	"github.com/vytor/gazetest/internal/storage"
	"github.com/vytor/gazetest/internal/testutil/mocks"
)

const storedCSV = "x,y,t\n0.1,0.1,1741946400000\n0.12,0.11,1741946400100\n0.9,0.8,1741946400200\n"

func newReview() (*mocks.MockResultRepository, *mocks.MockBlobStore, services.ReviewService) {
	results := new(mocks.MockResultRepository)
	blobs := new(mocks.MockBlobStore)
	return results, blobs, services.NewReviewService(results, blobs, 10*time.Minute)
}

func TestHeatmap_FractionalPoints(t *testing.T) {
	results, blobs, svc := newReview()
	results.On("GetRoundData", mock.Anything, "s1", 2).Return(&models.RoundData{
		SessionID:   "s1",
		RoundNumber: 2,
		CSVPath:     "s1/round_2.csv",
		Placements:  []models.Placement{{StimulusID: "x", Width: 0.1, Height: 0.25}},
	}, nil)
	blobs.On("Get", mock.Anything, storage.EyeTrackingBucket, "s1/round_2.csv").Return([]byte(storedCSV), nil)
	blobs.On("SignedURL", storage.EyeTrackingBucket, "s1/round_2.csv", 10*time.Minute).Return("/files/signed", nil)

	hm, err := svc.Heatmap(context.Background(), "s1", 2, services.HeatmapRequest{Cols: 2, Rows: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, hm.SampleCount)
	assert.Equal(t, "/files/signed", hm.CSVURL)
	require.Len(t, hm.Points, 3)
	assert.Equal(t, models.DensityPoint{X: 0.1, Y: 0.1, Value: 1}, hm.Points[0])
	assert.Equal(t, [][]int{{2, 0}, {0, 1}}, hm.Grid.Cells)
	assert.Equal(t, 2, hm.Grid.Max)
	assert.Len(t, hm.Placements, 1)
}

func TestHeatmap_ReprojectsIntoContainer(t *testing.T) {
	results, blobs, svc := newReview()
	results.On("GetRoundData", mock.Anything, "s1", 1).Return(&models.RoundData{CSVPath: "s1/round_1.csv"}, nil)
	blobs.On("Get", mock.Anything, storage.EyeTrackingBucket, "s1/round_1.csv").Return([]byte(storedCSV), nil)
	blobs.On("SignedURL", mock.Anything, mock.Anything, mock.Anything).Return("", storage.ErrInvalidPath)

	hm, err := svc.Heatmap(context.Background(), "s1", 1, services.HeatmapRequest{
		Container: &coords.Rect{Left: 100, Top: 50, Width: 1000, Height: 500},
	})
	require.NoError(t, err)

	require.Len(t, hm.Points, 3)
	assert.InDelta(t, 100.0, hm.Points[0].X, 1e-9)
	assert.InDelta(t, 50.0, hm.Points[0].Y, 1e-9)
	assert.InDelta(t, 900.0, hm.Points[2].X, 1e-9)
	assert.InDelta(t, 400.0, hm.Points[2].Y, 1e-9)
	assert.Equal(t, services.DefaultGridCols, hm.Grid.Cols)
	assert.Empty(t, hm.CSVURL)
}

func TestHeatmap_MaxGrid(t *testing.T) {
	results, blobs, svc := newReview()
	results.On("GetRoundData", mock.Anything, "s1", 1).Return(&models.RoundData{CSVPath: "s1/round_1.csv"}, nil)
	blobs.On("Get", mock.Anything, storage.EyeTrackingBucket, "s1/round_1.csv").Return([]byte(storedCSV), nil)
	blobs.On("SignedURL", mock.Anything, mock.Anything, mock.Anything).Return("/files/signed", nil)

	hm, err := svc.Heatmap(context.Background(), "s1", 1, services.HeatmapRequest{Cols: 200, Rows: 200})
	require.NoError(t, err)
	assert.Equal(t, 200, hm.Grid.Cols)
	assert.Len(t, hm.Grid.Cells, 200)
	assert.Equal(t, 3, hm.Grid.Total)
}

func TestHeatmap_Errors(t *testing.T) {
	results, blobs, svc := newReview()
	ctx := context.Background()

	_, err := svc.Heatmap(ctx, "s1", 0, services.HeatmapRequest{})
	requireAppError(t, err, errors.ErrCodeValidation)

	_, err = svc.Heatmap(ctx, "s1", 1, services.HeatmapRequest{Container: &coords.Rect{Width: 10}})
	requireAppError(t, err, errors.ErrCodeValidation)

	_, err = svc.Heatmap(ctx, "s1", 1, services.HeatmapRequest{Cols: 100000, Rows: 100000})
	requireAppError(t, err, errors.ErrCodeValidation)

	_, err = svc.Heatmap(ctx, "s1", 1, services.HeatmapRequest{Rows: 201})
	requireAppError(t, err, errors.ErrCodeValidation)
	results.AssertNotCalled(t, "GetRoundData", mock.Anything, "s1", 1)

	results.On("GetRoundData", mock.Anything, "s1", 3).Return(nil, sql.ErrNoRows)
	_, err = svc.Heatmap(ctx, "s1", 3, services.HeatmapRequest{})
	requireAppError(t, err, errors.ErrCodeNotFound)

	results.On("GetRoundData", mock.Anything, "s1", 4).Return(&models.RoundData{CSVPath: "s1/round_4.csv"}, nil)
	blobs.On("Get", mock.Anything, storage.EyeTrackingBucket, "s1/round_4.csv").Return(nil, storage.ErrNotFound)
	_, err = svc.Heatmap(ctx, "s1", 4, services.HeatmapRequest{})
	requireAppError(t, err, errors.ErrCodeNotFound)

	results.On("GetRoundData", mock.Anything, "s1", 5).Return(&models.RoundData{CSVPath: "s1/round_5.csv"}, nil)
	blobs.On("Get", mock.Anything, storage.EyeTrackingBucket, "s1/round_5.csv").Return([]byte("a,b\n1,2\n"), nil)
	_, err = svc.Heatmap(ctx, "s1", 5, services.HeatmapRequest{})
	requireAppError(t, err, errors.ErrCodeInternal)
}

func TestReactionLog(t *testing.T) {
	results, _, svc := newReview()
	results.On("GetReactionLog", mock.Anything, "none").Return(nil, sql.ErrNoRows)
	results.On("GetReactionLog", mock.Anything, "s1").Return(&models.ReactionLog{SessionID: "s1", Rounds: 2}, nil)

	_, err := svc.ReactionLog(context.Background(), "none")
	requireAppError(t, err, errors.ErrCodeNotFound)

	rl, err := svc.ReactionLog(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, rl.Rounds)
}
