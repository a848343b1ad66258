package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonathan/compass-harvester/internal/schemas"
	"github.com/jonathan/compass-harvester/internal/types"
	docs "github.com/jonathan/compass-harvester/schemas"
)

// Handles persists the directory grant apart from the checkpoint.
type Handles struct {
	kv KV
}

// NewHandles wraps kv.
func NewHandles(kv KV) *Handles {
	return &Handles{kv: kv}
}

// Load returns the stored grant, or nil when none was made.
func (h *Handles) Load(ctx context.Context) (*types.DirectoryCapability, error) {
	data, err := h.kv.Get(ctx, NamespaceHandles, types.CapabilityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory grant: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	if err := schemas.Validate(docs.Capability, data); err != nil {
		return nil, fmt.Errorf("stored directory grant is invalid: %w", err)
	}
	var grant types.DirectoryCapability
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("failed to decode directory grant: %w", err)
	}
	return &grant, nil
}

// Grant verifies root and stores it as the current grant.
func (h *Handles) Grant(ctx context.Context, grant types.DirectoryCapability) (*types.DirectoryCapability, error) {
	if grant.Root == "" {
		return nil, &types.CapabilityError{Message: "no directory granted"}
	}
	abs, err := filepath.Abs(grant.Root)
	if err != nil {
		return nil, &types.CapabilityError{Root: grant.Root, Message: "cannot resolve root", Cause: err}
	}
	grant.Root = abs
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	if err := grant.Check(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(grant)
	if err != nil {
		return nil, fmt.Errorf("failed to encode directory grant: %w", err)
	}
	if err := h.kv.Put(ctx, NamespaceHandles, types.CapabilityKey, data); err != nil {
		return nil, fmt.Errorf("failed to write directory grant: %w", err)
	}
	return &grant, nil
}

// Revoke forgets the stored grant.
func (h *Handles) Revoke(ctx context.Context) error {
	return h.kv.Delete(ctx, NamespaceHandles, types.CapabilityKey)
}
