// Package archive stores exported reports in Azure Blob Storage.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/sirupsen/logrus"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
	"github.com/anushkaa29gupta/ByteCoders2.0/internal/logger"
	"github.com/anushkaa29gupta/ByteCoders2.0/pkg/models"
)

const reportContentType = "application/json"

// ReportArchive persists a rendered report and returns where it went
type ReportArchive interface {
	Save(ctx context.Context, report *models.Report, data []byte) (string, error)
	Enabled() bool
}

// uploader is the part of *azblob.Client the archive needs
type uploader interface {
	UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	URL() string
}

type azureArchive struct {
	client    uploader
	container string
}

// NewAzureArchive connects to the storage account with a shared key
func NewAzureArchive(accountName, accountKey, container string) (ReportArchive, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &azureArchive{client: client, container: container}, nil
}

func (a *azureArchive) Enabled() bool { return true }

// Save uploads the report under reports/<yyyy>/<mm>/<id>.json
func (a *azureArchive) Save(ctx context.Context, report *models.Report, data []byte) (string, error) {
	if report == nil {
		return "", apperrors.NewValidationError("no report to archive", nil)
	}

	name := BlobName(report.ID, report.GeneratedAt)
	contentType := reportContentType
	fileName := report.FileName

	_, err := a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    map[string]*string{"source_file": &fileName},
	})
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"container": a.container,
			"blob":      name,
		}).Error("Report upload failed")
		return "", apperrors.NewUnavailableError("report archive upload failed", err)
	}

	location := strings.TrimRight(a.client.URL(), "/") + "/" + a.container + "/" + name
	logger.WithFields(logrus.Fields{
		"container": a.container,
		"blob":      name,
		"bytes":     len(data),
	}).Info("Report archived")
	return location, nil
}

// BlobName is the blob path a report is stored under
func BlobName(id string, generatedAt time.Time) string {
	return fmt.Sprintf("reports/%04d/%02d/%s.json", generatedAt.Year(), int(generatedAt.Month()), id)
}

type disabledArchive struct{}

// Disabled is used when no storage account is configured
func Disabled() ReportArchive {
	return disabledArchive{}
}

func (disabledArchive) Enabled() bool { return false }

func (disabledArchive) Save(context.Context, *models.Report, []byte) (string, error) {
	return "", apperrors.NewUnavailableError("report archive is not configured", nil)
}
