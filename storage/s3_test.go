package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apt_scrooper/config"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	fake := &fakeS3{}
	a := &S3Archiver{
		client: fake,
		bucket: "pages-bucket",
		prefix: "pages",
		now:    func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) },
	}

	key, err := a.Archive(context.Background(), "crescent", "https://www.novelmidtown.com/floor-plans/", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "pages/crescent/novelmidtown.com/20260304T050607.html", key)
	assert.Equal(t, "pages-bucket", *fake.input.Bucket)
	assert.Equal(t, key, *fake.input.Key)
	assert.Equal(t, "<html></html>", string(fake.body))
}

func TestS3Archiver_PropagatesError(t *testing.T) {
	a := &S3Archiver{client: &fakeS3{err: errors.New("denied")}, bucket: "b", now: time.Now}
	_, err := a.Archive(context.Background(), "crescent", "https://example.com", nil)
	assert.ErrorContains(t, err, "denied")
}

func TestNewArchiver_DisabledWithoutBucket(t *testing.T) {
	a, err := NewArchiver(context.Background(), config.S3Config{})
	require.NoError(t, err)
	assert.IsType(t, NoOpArchiver{}, a)

	key, err := a.Archive(context.Background(), "x", "https://example.com", []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, key)
}
