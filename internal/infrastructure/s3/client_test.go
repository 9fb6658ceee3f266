package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type putCall struct {
	key         string
	contentType string
	data        string
}

type fakeStore struct {
	exists  bool
	made    bool
	puts    []putCall
	putErr  error
	expires time.Duration
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeStore) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made = true
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, _, objectName string, reader io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, _ := io.ReadAll(reader)
	f.puts = append(f.puts, putCall{key: objectName, contentType: opts.ContentType, data: string(data)})
	return minio.UploadInfo{Key: objectName}, nil
}

func (f *fakeStore) PresignedGetObject(_ context.Context, bucket, objectName string, expires time.Duration, _ url.Values) (*url.URL, error) {
	f.expires = expires
	return url.Parse("https://minio.local/" + bucket + "/" + objectName + "?sig=1")
}

func newTestClient(store *fakeStore) *Client {
	return &Client{client: store, bucket: "backups", logger: zerolog.Nop()}
}

func TestEnsureBucket(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, newTestClient(store).EnsureBucket(context.Background()))
	require.True(t, store.made)

	store = &fakeStore{exists: true}
	require.NoError(t, newTestClient(store).EnsureBucket(context.Background()))
	require.False(t, store.made)
}

func TestUploadSnapshot(t *testing.T) {
	store := &fakeStore{}
	c := newTestClient(store)

	require.NoError(t, c.UploadSnapshot(context.Background(), "bot_state.json", []byte(`{"version":2}`)))
	require.Len(t, store.puts, 1)
	require.True(t, strings.HasPrefix(store.puts[0].key, "snapshots/"))
	require.True(t, strings.HasSuffix(store.puts[0].key, "_bot_state.json"))
	require.Equal(t, "application/json", store.puts[0].contentType)
	require.Equal(t, `{"version":2}`, store.puts[0].data)
}

func TestUploadSessionArchive(t *testing.T) {
	store := &fakeStore{}
	c := newTestClient(store)

	link, err := c.UploadSessionArchive(context.Background(), "sessions.zip", []byte("zip"))
	require.NoError(t, err)
	require.Contains(t, link, "https://minio.local/backups/sessions/")
	require.Equal(t, archiveLinkTTL, store.expires)
	require.Equal(t, "application/zip", store.puts[0].contentType)
}

func TestUploadError(t *testing.T) {
	store := &fakeStore{putErr: errors.New("access denied")}
	c := newTestClient(store)

	err := c.UploadSnapshot(context.Background(), "bot_state.json", nil)
	require.ErrorContains(t, err, "access denied")

	_, err = c.UploadSessionArchive(context.Background(), "sessions.zip", nil)
	require.Error(t, err)
}
