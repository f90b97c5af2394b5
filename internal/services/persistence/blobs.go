package persistence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

var (
	_ detection.ImageStore = (*MemoryBlobs)(nil)
	_ detection.ImageStore = (*FSBlobs)(nil)
	_ detection.ImageStore = (*GridFSBlobs)(nil)
)

// blobName is content addressed, so re-uploading the same image yields the same URL.
func blobName(data []byte, contentType string) string {
	sum := sha256.Sum256(data)
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	return hex.EncodeToString(sum[:]) + ext
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}

type blob struct {
	contentType string
	data        []byte
}

// MemoryBlobs keeps images in memory. URLs use the mem:// scheme unless a base URL is given.
type MemoryBlobs struct {
	base  string
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewMemoryBlobs(baseURL string) *MemoryBlobs {
	if baseURL == "" {
		baseURL = "mem://images"
	}
	return &MemoryBlobs{base: baseURL, blobs: make(map[string]blob)}
}

func (m *MemoryBlobs) Put(_ context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}
	name := blobName(data, contentType)
	m.mu.Lock()
	m.blobs[name] = blob{contentType: contentType, data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return joinURL(m.base, name), nil
}

// Open returns a stored image by name.
func (m *MemoryBlobs) Open(name string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[name]
	return b.data, b.contentType, ok
}

func (m *MemoryBlobs) BaseURL() string { return m.base }

// Handler serves stored images by name; mount it under the base URL path.
func (m *MemoryBlobs) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, contentType, ok := m.Open(path.Base(r.URL.Path))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	})
}

// FSBlobs writes images under a directory and serves them back over HTTP.
type FSBlobs struct {
	dir  string
	base string
}

func NewFSBlobs(dir, baseURL string) (*FSBlobs, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/images"
	}
	return &FSBlobs{dir: dir, base: baseURL}, nil
}

func (f *FSBlobs) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := blobName(data, contentType)
	final := filepath.Join(f.dir, name)
	if _, err := os.Stat(final); err == nil {
		return joinURL(f.base, name), nil
	}
	tmp, err := os.CreateTemp(f.dir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return joinURL(f.base, name), nil
}

func (f *FSBlobs) BaseURL() string { return f.base }

// Handler serves stored images; mount it under the base URL path.
func (f *FSBlobs) Handler() http.Handler {
	return http.FileServer(http.Dir(f.dir))
}

// GridFSBlobs stores images in a MongoDB GridFS bucket.
type GridFSBlobs struct {
	bucket *gridfs.Bucket
	base   string
}

func NewGridFSBlobs(db *mongo.Database, baseURL string) (*GridFSBlobs, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("images"))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket: %w", err)
	}
	if baseURL == "" {
		baseURL = "gridfs://images"
	}
	return &GridFSBlobs{bucket: bucket, base: baseURL}, nil
}

func (g *GridFSBlobs) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := g.bucket.SetWriteDeadline(deadline); err != nil {
			return "", err
		}
	}
	name := blobName(data, contentType)
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	id, err := g.bucket.UploadFromStream(name, bytes.NewReader(data), opts)
	if err != nil {
		return "", fmt.Errorf("gridfs upload: %w", err)
	}
	return joinURL(g.base, id.Hex()), nil
}
