package handler

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"attendly/internal/apperr"
	"attendly/internal/attendance"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator report fields by their json name.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// bindJSON decodes the request body into dst and turns binding failures
// into validation errors.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{Field: fieldPath(fe), Error: describe(fe)})
		}
		return apperr.Validation("validation failed", fields...)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperr.Field(typeErr.Field, "wrong type for "+typeErr.Field)
	}
	return apperr.Validation("invalid request body")
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}

// writeError renders err with the status its kind maps to. Anything that
// is not a domain failure is logged and hidden behind a 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := h.errorBody(c, err)
	c.JSON(status, body)
}

func (h *Handler) errorBody(c *gin.Context, err error) (int, gin.H) {
	var ae *apperr.Error
	msg := err.Error()
	if errors.As(err, &ae) {
		msg = ae.Error()
	}

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound, gin.H{"error": msg}
	case apperr.KindConflict:
		return http.StatusConflict, gin.H{"error": msg}
	case apperr.KindValidation:
		body := gin.H{"error": msg}
		if fields := apperr.FieldsOf(err); len(fields) > 0 {
			body["fields"] = fields
		}
		return http.StatusBadRequest, body
	case apperr.KindAuthorization:
		return http.StatusForbidden, gin.H{"error": msg}
	case apperr.KindCredential:
		if ae != nil && ae.Err != nil {
			h.log.Debug("credential rejected", zap.String("path", c.FullPath()), zap.Error(ae.Err))
		}
		return http.StatusUnauthorized, gin.H{"error": apperr.CredentialMessage}
	}

	h.log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	return http.StatusInternalServerError, gin.H{"error": "internal server error"}
}

// writeBulkError reports the failing element of a bulk mark together with
// the records committed before it.
func (h *Handler) writeBulkError(c *gin.Context, saved []attendance.Record, err error) {
	var bulk *attendance.BulkError
	if !errors.As(err, &bulk) {
		h.writeError(c, err)
		return
	}
	status, body := h.errorBody(c, bulk.Err)
	body["index"] = bulk.Index
	body["saved"] = saved
	c.JSON(status, body)
}
