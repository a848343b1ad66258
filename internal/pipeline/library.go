package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/compass-harvester/internal/harvest"
	"github.com/jonathan/compass-harvester/internal/inventory"
	"github.com/jonathan/compass-harvester/internal/store"
	"github.com/jonathan/compass-harvester/internal/types"
)

// GrantStore is the directory grant persistence.
type GrantStore interface {
	Load(ctx context.Context) (*types.DirectoryCapability, error)
	Grant(ctx context.Context, grant types.DirectoryCapability) (*types.DirectoryCapability, error)
}

var _ GrantStore = (*store.Handles)(nil)

// OpenLibrary returns the library of the stored grant. When root is set it is
// granted first, replacing any previous grant.
func OpenLibrary(ctx context.Context, handles GrantStore, root string, log *logrus.Entry) (*inventory.Library, error) {
	if root != "" {
		grant, err := handles.Grant(ctx, types.DirectoryCapability{Root: root})
		if err != nil {
			return nil, err
		}
		log.WithField("root", grant.Root).Info("directory granted")
		return inventory.NewLibrary(*grant, log), nil
	}

	grant, err := handles.Load(ctx)
	if err != nil {
		return nil, &types.CapabilityError{Message: "cannot read directory grant", Cause: err}
	}
	if grant == nil {
		return nil, &types.CapabilityError{Message: "no directory granted; pass --root", Cause: harvest.ErrNoCapability}
	}
	lib := inventory.NewLibrary(*grant, log)
	if err := lib.Check(); err != nil {
		return nil, err
	}
	return lib, nil
}

// ScanLibrary opens the granted library and rebuilds the work queue from it.
func ScanLibrary(ctx context.Context, handles GrantStore, root string, log *logrus.Entry) (*inventory.Result, error) {
	lib, err := OpenLibrary(ctx, handles, root, log)
	if err != nil {
		return nil, err
	}
	res, err := lib.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", lib.Root(), err)
	}
	return res, nil
}
