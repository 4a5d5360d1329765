package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

type fakeUploader struct {
	container string
	blob      string
	data      []byte
	opts      *azblob.UploadBufferOptions
	err       error
}

func (f *fakeUploader) UploadBuffer(_ context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container, f.blob, f.data, f.opts = containerName, blobName, buffer, o
	return azblob.UploadBufferResponse{}, f.err
}

func (f *fakeUploader) URL() string { return "https://acct.blob.core.windows.net/" }

func testReport() *models.Report {
	return &models.Report{
		ID:          "3f1c",
		GeneratedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
		FileName:    "photo.jpg",
	}
}

func TestBlobName(t *testing.T) {
	assert.Equal(t, "reports/2024/03/3f1c.json", BlobName("3f1c", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "reports/2025/12/x.json", BlobName("x", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
}

func TestAzureArchive_Save(t *testing.T) {
	up := &fakeUploader{}
	a := &azureArchive{client: up, container: "reports"}

	location, err := a.Save(context.Background(), testReport(), []byte(`{"id":"3f1c"}`))
	require.NoError(t, err)

	assert.Equal(t, "https://acct.blob.core.windows.net/reports/reports/2024/03/3f1c.json", location)
	assert.Equal(t, "reports", up.container)
	assert.Equal(t, "reports/2024/03/3f1c.json", up.blob)
	assert.Equal(t, `{"id":"3f1c"}`, string(up.data))
	require.NotNil(t, up.opts)
	require.NotNil(t, up.opts.HTTPHeaders)
	assert.Equal(t, "application/json", *up.opts.HTTPHeaders.BlobContentType)
	assert.Equal(t, "photo.jpg", *up.opts.Metadata["source_file"])
	assert.True(t, a.Enabled())
}

func TestAzureArchive_SaveFailure(t *testing.T) {
	a := &azureArchive{client: &fakeUploader{err: errors.New("403")}, container: "reports"}

	_, err := a.Save(context.Background(), testReport(), []byte("{}"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))

	_, err = a.Save(context.Background(), nil, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestDisabled(t *testing.T) {
	a := Disabled()
	assert.False(t, a.Enabled())

	_, err := a.Save(context.Background(), testReport(), []byte("{}"))
	assert.Equal(t, 503, apperrors.GetStatusCode(err))
}
