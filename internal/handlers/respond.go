package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/vidtube/backend/internal/apperr"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	maxPageNumber    = 1_000_000
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Error   *apperr.ErrorBody `json:"error,omitempty"`
}

type pageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func newPageResult[T any](items []T, page models.Page, total int64) pageResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := total / int64(page.Limit)
	if total%int64(page.Limit) != 0 {
		pages++
	}
	return pageResult[T]{Items: items, Page: page.Number, Limit: page.Limit, Total: total, TotalPages: pages}
}

// responder renders failures. Detail exposes wrapped causes and is disabled in production.
type responder struct {
	Detail bool
}

func (rs responder) fail(ctx context.Context, w http.ResponseWriter, err error) {
	body := apperr.Body(err, rs.Detail)
	if body.Kind == apperr.KindInternal {
		logging.FromContext(ctx).Error("request error", logging.Err(err))
	}
	respondJSON(ctx, w, apperr.HTTPStatus(body.Kind), envelope{Error: &body})
}

func respondOK(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	respondJSON(ctx, w, status, envelope{Success: true, Message: message, Data: data})
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, logging.Err(err))
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// decodeJSON reads the request body into dst and validates its struct tags.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, "invalid request body", err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Internal("failed to validate request", err)
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return apperr.InvalidArgument(strings.Join(messages, ", "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "alphanum":
		return fmt.Sprintf("%s must contain only letters and digits", fe.Field())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a valid id", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

var textPolicy = bluemonday.StrictPolicy()

// maxCleanPasses bounds how many layers of entity encoding cleanText peels off.
const maxCleanPasses = 8

// cleanText strips markup from user-supplied text, including markup hidden behind
// entity encoding. Plain text comes back unescaped once stripping no longer changes it.
// Input that is still changing after maxCleanPasses is returned in escaped form.
func cleanText(s string) string {
	for i := 0; i < maxCleanPasses; i++ {
		stripped := html.UnescapeString(textPolicy.Sanitize(s))
		if stripped == s {
			return strings.TrimSpace(s)
		}
		s = stripped
	}
	return strings.TrimSpace(textPolicy.Sanitize(s))
}

// pathID reads a UUID route parameter.
func pathID(r *http.Request, param, noun string) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, param))
	if _, err := uuid.Parse(raw); err != nil {
		return "", apperr.InvalidArgument(fmt.Sprintf("invalid %s id", noun))
	}
	return raw, nil
}

// pageFromQuery parses page and limit, defaulting to the first page of ten.
func pageFromQuery(r *http.Request) (models.Page, error) {
	page := models.Page{Number: 1, Limit: defaultPageLimit}
	query := r.URL.Query()

	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageNumber {
			return models.Page{}, apperr.InvalidArgument(fmt.Sprintf("page must be between 1 and %d", maxPageNumber))
		}
		page.Number = n
	}
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageLimit {
			return models.Page{}, apperr.InvalidArgument(fmt.Sprintf("limit must be between 1 and %d", maxPageLimit))
		}
		page.Limit = n
	}
	return page, nil
}
