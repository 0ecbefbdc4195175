package publish

import (
	"context"
	"sync"

	"github.com/sealfeed/sealfeed/pkg/identity"
	"github.com/sealfeed/sealfeed/pkg/walrus"
)

// TaskState is the durable progress of one publish task. Zero-valued
// fields mark steps that have not completed yet; a step with a recorded
// value is never executed again.
type TaskState struct {
	Identifier identity.Identifier `json:"identifier,omitempty"`
	FullRef    walrus.BlobRef      `json:"full_ref,omitempty"`
	PreviewRef walrus.BlobRef      `json:"preview_ref,omitempty"`
	Digest     string              `json:"digest,omitempty"`
}

// Done reports whether the task reached the on-chain record.
func (s TaskState) Done() bool { return s.Digest != "" }

// Journal persists publish progress between process runs so an
// interrupted publish resumes instead of re-uploading blobs or minting a
// duplicate on-chain record.
type Journal interface {
	// Load returns the recorded state for a task, or (nil, nil) when the
	// task is unknown.
	Load(ctx context.Context, taskID string) (*TaskState, error)

	// Save overwrites the recorded state for a task.
	Save(ctx context.Context, taskID string, state TaskState) error

	// Delete forgets a task. Deleting an unknown task is not an error.
	Delete(ctx context.Context, taskID string) error
}

// MemJournal is an in-process Journal for tests and for callers that do
// not need resume across restarts.
type MemJournal struct {
	mu    sync.Mutex
	tasks map[string]TaskState
}

// NewMemJournal creates an empty in-memory journal.
func NewMemJournal() *MemJournal {
	return &MemJournal{tasks: make(map[string]TaskState)}
}

func (j *MemJournal) Load(ctx context.Context, taskID string) (*TaskState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	state, ok := j.tasks[taskID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (j *MemJournal) Save(ctx context.Context, taskID string, state TaskState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tasks[taskID] = state
	return nil
}

func (j *MemJournal) Delete(ctx context.Context, taskID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.tasks, taskID)
	return nil
}

var _ Journal = (*MemJournal)(nil)
