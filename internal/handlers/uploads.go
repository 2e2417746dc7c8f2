package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/storage"
)

const (
	defaultMaxUploadBytes = 64 << 20
	multipartMemory       = 8 << 20
)

// parseMultipart bounds the body to limit bytes and parses it as a multipart form.
func parseMultipart(w http.ResponseWriter, r *http.Request, limit int64) error {
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.KindInvalidArgument, "upload exceeds the size limit", err)
		}
		return apperr.Wrap(apperr.KindInvalidArgument, "invalid multipart form", err)
	}
	return nil
}

// formValue returns the trimmed value of a multipart field.
func formValue(r *http.Request, field string) string {
	return strings.TrimSpace(r.FormValue(field))
}

// saveUpload stores the file posted under field in folder and returns its public URL. A missing
// optional file yields an empty URL.
func saveUpload(ctx context.Context, store storage.ObjectStore, r *http.Request, field, folder string, required bool) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			if required {
				return "", apperr.InvalidArgument(fmt.Sprintf("%s file is required", field))
			}
			return "", nil
		}
		return "", apperr.Wrap(apperr.KindInvalidArgument, fmt.Sprintf("invalid %s file", field), err)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	if store == nil {
		return "", apperr.Internal("file storage unavailable", nil)
	}

	url, err := store.Save(ctx, storage.ObjectKey(folder, header.Filename), file, header.Header.Get("Content-Type"))
	if err != nil {
		return "", apperr.Internal(fmt.Sprintf("failed to upload %s", field), err)
	}
	logging.FromContext(ctx).Debug("file uploaded", "field", field, "size", header.Size)
	return url, nil
}
