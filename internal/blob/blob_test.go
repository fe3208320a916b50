package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return "mem://" + key, nil
}

func (m *memStore) Health(context.Context) error { return nil }

func TestUploaderAcceptsAllowedTypes(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store, 1024)

	att, err := u.Upload(context.Background(), "site-1", "visitor-1", "pixel.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	require.Equal(t, "image/png", att.ContentType)
	require.Equal(t, "pixel.png", att.Filename)
	require.Equal(t, int64(len(pngHeader)), att.Size)
	require.True(t, strings.HasPrefix(att.URL, "mem://site-1/visitor-1/"))
	require.True(t, strings.HasSuffix(att.URL, ".png"))

	att, err = u.Upload(context.Background(), "site-1", "visitor-1", "../../notes.txt", strings.NewReader("plain notes"))
	require.NoError(t, err)
	require.Equal(t, "text/plain", att.ContentType)
	require.Equal(t, "notes.txt", att.Filename)
}

func TestUploaderRejects(t *testing.T) {
	u := NewUploader(newMemStore(), 16)

	_, err := u.Upload(context.Background(), "s", "v", "empty.txt", strings.NewReader(""))
	require.True(t, errors.Is(err, ErrEmptyFile))

	_, err = u.Upload(context.Background(), "s", "v", "big.txt", strings.NewReader(strings.Repeat("a", 17)))
	require.True(t, errors.Is(err, ErrFileTooLarge))

	_, err = u.Upload(context.Background(), "s", "v", "page.txt", strings.NewReader("<html><body>hi"))
	require.True(t, errors.Is(err, ErrUnsupportedType), "type is sniffed, not taken from the name")
}

func TestUploaderStoreFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("bucket unavailable")
	u := NewUploader(store, 0)
	require.Equal(t, DefaultMaxBytes, u.MaxBytes())

	_, err := u.Upload(context.Background(), "s", "v", "a.png", bytes.NewReader(pngHeader))
	require.ErrorIs(t, err, store.err)
}

type fakeS3 struct {
	puts []*s3.PutObjectInput
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func TestS3StorePut(t *testing.T) {
	client := &fakeS3{}
	store := newS3Store(client, "attachments", "https://cdn.example.com", slog.Default())

	url, err := store.Put(context.Background(), "site/visitor 1/file.png", bytes.NewReader(pngHeader), int64(len(pngHeader)), "image/png")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/site/visitor%201/file.png", url)
	require.Len(t, client.puts, 1)
	require.Equal(t, "attachments", aws.ToString(client.puts[0].Bucket))
	require.Equal(t, "image/png", aws.ToString(client.puts[0].ContentType))
	require.NoError(t, store.Health(context.Background()))

	client.err = errors.New("denied")
	_, err = store.Put(context.Background(), "k", bytes.NewReader(nil), 0, "text/plain")
	require.Error(t, err)
	require.Error(t, store.Health(context.Background()))
}

func TestDefaultBucketURL(t *testing.T) {
	require.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", defaultBucketURL(S3Config{Bucket: "b", Region: "eu-west-1"}))
	require.Equal(t, "http://minio:9000/b", defaultBucketURL(S3Config{Bucket: "b", Endpoint: "http://minio:9000/"}))
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "site/v/file.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	require.Equal(t, "/uploads/site/v/file.txt", url)

	data, err := os.ReadFile(filepath.Join(dir, "site", "v", "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, err = store.Put(context.Background(), "../escape.txt", strings.NewReader("x"), 1, "text/plain")
	require.Error(t, err)
	require.NoError(t, store.Health(context.Background()))
}
