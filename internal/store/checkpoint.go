package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/compass-harvester/internal/schemas"
	"github.com/jonathan/compass-harvester/internal/types"
	docs "github.com/jonathan/compass-harvester/schemas"
)

// CorruptCheckpointError reports a stored checkpoint that cannot be trusted.
type CorruptCheckpointError struct {
	Message string
	Cause   error
}

func (e *CorruptCheckpointError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("corrupt checkpoint: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("corrupt checkpoint: %s", e.Message)
}

func (e *CorruptCheckpointError) Unwrap() error {
	return e.Cause
}

// Checkpoints reads and writes the single process-wide harvest checkpoint.
type Checkpoints struct {
	kv  KV
	now func() time.Time
}

// NewCheckpoints wraps kv.
func NewCheckpoints(kv KV) *Checkpoints {
	return &Checkpoints{kv: kv, now: time.Now}
}

// Load returns the stored checkpoint, or nil when there is none.
func (c *Checkpoints) Load(ctx context.Context) (*types.HarvestCheckpoint, error) {
	data, err := c.kv.Get(ctx, NamespaceState, CheckpointKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	if err := schemas.Validate(docs.Checkpoint, data); err != nil {
		return nil, &CorruptCheckpointError{Message: "schema validation failed", Cause: err}
	}
	var cp types.HarvestCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &CorruptCheckpointError{Message: "failed to decode", Cause: err}
	}
	cp.Normalize()
	if err := cp.Validate(); err != nil {
		return nil, &CorruptCheckpointError{Message: "invariant violated", Cause: err}
	}
	return &cp, nil
}

// Save replaces the stored checkpoint with cp and stamps UpdatedAt.
func (c *Checkpoints) Save(ctx context.Context, cp *types.HarvestCheckpoint) error {
	cp.Normalize()
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("refusing to save checkpoint: %w", err)
	}
	cp.UpdatedAt = c.now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := c.kv.Put(ctx, NamespaceState, CheckpointKey, data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Clear deletes the stored checkpoint. Clearing an absent checkpoint succeeds.
func (c *Checkpoints) Clear(ctx context.Context) error {
	if err := c.kv.Delete(ctx, NamespaceState, CheckpointKey); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
