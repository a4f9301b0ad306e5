//go:build integration

package storage

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/cloo-solutions/pdfqa/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ctx context.Context, t *testing.T) *S3Client {
	t.Helper()
	rc := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSCredential,
		SecretAccessKey: testutil.RustFSCredential,
		Bucket:          "pdfqa-test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	return client
}

func putPresigned(t *testing.T, url string, data []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/pdf")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestS3Client_UploadDownloadDelete(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(ctx, t)
	key := "uploads/session-1/doc.pdf"
	data := []byte("%PDF-1.4 fake content")

	url, err := client.GenerateUploadURL(ctx, key, "application/pdf")
	require.NoError(t, err)
	putPresigned(t, url, data)

	meta, err := client.HeadObject(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), meta.ContentLength)

	got, err := client.Download(ctx, key, 1024)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = client.Download(ctx, key, 4)
	assert.ErrorIs(t, err, ErrObjectTooLarge)

	require.NoError(t, client.DeleteObject(ctx, key))
	_, err = client.HeadObject(ctx, key)
	assert.Error(t, err)
}
