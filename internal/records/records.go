package records

import (
	"context"
	"errors"
	"time"
)

// Recording is the persisted metadata for one uploaded take. S3Filepath
// is nil while the upload is in progress and stays nil if the storage
// write failed after the record was created. AccuracyScore is reserved
// for offline scoring and is never computed here.
type Recording struct {
	ID             string    `json:"id"`
	SubmissionDate time.Time `json:"submission_date"`
	ScriptText     string    `json:"script_text"`
	Transcription  string    `json:"transcription"`
	AccuracyScore  *float64  `json:"accuracy_score"`
	S3Filepath     *string   `json:"s3_filepath"`
}

// ErrNotFound is returned when a recording id does not exist.
var ErrNotFound = errors.New("records: recording not found")

// Store is the record-store interface. Implementations: Postgres and
// Redis, selected by configuration.
type Store interface {
	// Create persists a new recording. The caller supplies ID and
	// SubmissionDate.
	Create(ctx context.Context, rec *Recording) error
	// SetFilepath records the storage path after a successful blob write.
	SetFilepath(ctx context.Context, id, path string) error
	// SetAccuracyScore records an offline scoring result.
	SetAccuracyScore(ctx context.Context, id string, score float64) error
	// Get returns one recording by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Recording, error)
	// List returns all recordings ordered by submission date descending.
	List(ctx context.Context) ([]*Recording, error)
	// Close releases the underlying client.
	Close() error
}
