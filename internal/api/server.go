package api

import (
	"database/sql"

	"github.com/vytor/gazetest/internal/jobs"
	"github.com/vytor/gazetest/internal/services"
	"github.com/vytor/gazetest/internal/storage"
)

type Server struct {
	DB       *sql.DB
	Sessions services.SessionService
	Review   services.ReviewService
	Blobs    storage.BlobStore
	Queue    jobs.JobQueue
}
