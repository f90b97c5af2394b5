package persistence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobsContentAddressed(t *testing.T) {
	b := NewMemoryBlobs("")
	ctx := context.Background()

	u1, err := b.Put(ctx, []byte("leaf"), "image/png")
	require.NoError(t, err)
	u2, err := b.Put(ctx, []byte("leaf"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, u1, u2)
	assert.True(t, strings.HasPrefix(u1, "mem://images/"))
	assert.True(t, strings.HasSuffix(u1, ".png"))

	data, ct, ok := b.Open(path.Base(u1))
	require.True(t, ok)
	assert.Equal(t, "leaf", string(data))
	assert.Equal(t, "image/png", ct)

	_, err = b.Put(ctx, nil, "image/png")
	assert.Error(t, err)
}

func TestFSBlobsWriteAndServe(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFSBlobs(dir, "http://cdn.local/images/")
	require.NoError(t, err)

	url, err := b.Put(context.Background(), []byte("pixels"), "application/x-agrispray-unknown")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://cdn.local/images/"))
	assert.True(t, strings.HasSuffix(url, ".bin"))

	name := path.Base(url)
	raw, err := os.ReadFile(dir + "/" + name)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(raw))

	srv := httptest.NewServer(b.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/" + name)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFSBlobsHonoursCancelledContext(t *testing.T) {
	b, err := NewFSBlobs(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Put(ctx, []byte("x"), "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}
