// Package intake turns a user-selected file into an in-memory Upload and a
// displayable ImageHandle.
package intake

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"

	"github.com/gabriel-vasile/mimetype"
)

const FormField = "file"

const genericContentType = "application/octet-stream"

// Upload is the raw file as selected by the user
type Upload struct {
	Name         string
	ContentType  string
	Data         []byte
	ExpectedText string
}

// Size returns the number of bytes in the upload
func (u *Upload) Size() int64 {
	return int64(len(u.Data))
}

// ImageHandle is a displayable encoding of an upload plus the upload itself
type ImageHandle struct {
	DataURI string
	File    *Upload
}

// Release drops the encoded image and the file bytes
func (h *ImageHandle) Release() {
	if h == nil {
		return
	}
	h.DataURI = ""
	if h.File != nil {
		h.File.Data = nil
	}
	h.File = nil
}

// FromMultipart reads the single file carried in the form's file field.
// Zero or several files is a validation error; a read failure is an encoding error.
func FromMultipart(form *multipart.Form) (*Upload, error) {
	if form == nil {
		return nil, apperrors.NewValidationError("exactly one file is required", nil)
	}
	headers := form.File[FormField]
	if len(headers) != 1 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("exactly one file is required (got %d)", len(headers)), nil)
	}

	upload, err := FromFileHeader(headers[0])
	if err != nil {
		return nil, err
	}
	if values := form.Value["expected_text"]; len(values) > 0 {
		upload.ExpectedText = strings.TrimSpace(values[0])
	}
	return upload, nil
}

// FromFileHeader reads one multipart file into memory
func FromFileHeader(header *multipart.FileHeader) (*Upload, error) {
	f, err := header.Open()
	if err != nil {
		return nil, apperrors.NewEncodingError("could not open uploaded file", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewEncodingError("could not read uploaded file", err)
	}

	return &Upload{
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// FromPath reads a file from disk, as the CLI does
func FromPath(path string) (*Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewEncodingError("could not read file", err)
	}
	return &Upload{Name: filepath.Base(path), Data: data}, nil
}

// Encode produces the data URI handle for an upload. The declared content type
// is trusted unless it is missing or generic, in which case the bytes are sniffed.
func Encode(upload *Upload) (*ImageHandle, error) {
	if upload == nil {
		return nil, apperrors.NewEncodingError("no file to encode", nil)
	}

	contentType := DetectContentType(upload)
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(contentType) + base64.StdEncoding.EncodedLen(len(upload.Data)))
	b.WriteString("data:")
	b.WriteString(contentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(upload.Data))

	return &ImageHandle{DataURI: b.String(), File: upload}, nil
}

// DetectContentType returns the media type used for the data URI
func DetectContentType(upload *Upload) string {
	declared := strings.TrimSpace(upload.ContentType)
	if declared != "" && declared != genericContentType {
		return declared
	}
	// mimetype parameters such as charset are not useful in a data URI
	detected := mimetype.Detect(upload.Data).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = detected[:i]
	}
	return detected
}
