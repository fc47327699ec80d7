package gcs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://bucket/portfolios/hypotheken.csv", "bucket", "portfolios/hypotheken.csv", false},
		{"gs://bucket/a.csv", "bucket", "a.csv", false},
		{"gs://bucket", "", "", true},
		{"gs://bucket/", "", "", true},
		{"gs:///a.csv", "", "", true},
		{"/tmp/a.csv", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidURI))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.object, object)
		})
	}
}

func TestExtractFilename(t *testing.T) {
	assert.Equal(t, "out.csv", ExtractFilename("gs://bucket/runs/out.csv"))
	assert.Equal(t, "bucket", ExtractFilename("gs://bucket"))
	assert.Equal(t, "in.csv", ExtractFilename(filepath.Join("data", "in.csv")))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "gs://bucket/runs/r1/physical.csv", Join("gs://bucket/runs/r1", "physical.csv"))
	assert.Equal(t, "gs://bucket/x.csv", Join("gs://bucket/", "x.csv"))
	assert.Equal(t, filepath.Join("out", "x.csv"), Join("out", "x.csv"))
}

func TestStore_LocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	uri := filepath.Join(t.TempDir(), "nested", "report.csv")

	require.NoError(t, s.Write(ctx, uri, []byte("id;x\n1;2\n")))
	data, err := s.Read(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "id;x\n1;2\n", string(data))

	copyURI := filepath.Join(t.TempDir(), "copy.csv")
	require.NoError(t, s.UploadFile(ctx, uri, copyURI))
	data, err = s.Read(ctx, copyURI)
	require.NoError(t, err)
	assert.Equal(t, "id;x\n1;2\n", string(data))
}

func TestStore_ReadMissing(t *testing.T) {
	_, err := NewStore().Read(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}

func TestStore_InvalidBucketURI(t *testing.T) {
	_, err := NewStore().Read(context.Background(), "gs://only-bucket")
	assert.True(t, errors.Is(err, ErrInvalidURI))
}
