//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r, err := Connect(ctx, Options{Addr: addr, KeyPrefix: "test-" + uuid.NewString()[:8]})
	if err != nil {
		t.Skipf("Skipping integration test: %v", err)
	}
	defer r.Close()

	got, err := r.Get(ctx, "state", "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.Put(ctx, "state", "k", []byte(`{"a":1}`)))
	got, err = r.Get(ctx, "state", "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	require.NoError(t, r.Delete(ctx, "state", "k"))
	got, err = r.Get(ctx, "state", "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}
