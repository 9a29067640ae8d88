package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wonny/predico/internal/apperr"
	"github.com/wonny/predico/internal/auth"
	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/pkg/logger"
)

const maxBodySize = 10 << 20

// validate checks request structs; field names in errors use json tags
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// envelope is the body of every API response
type envelope struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *apperr.Error `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// respondError writes classified errors as-is. Anything else is logged and
// reported as a generic internal error.
func respondError(w http.ResponseWriter, log *logger.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		log.WithError(err).Error("unhandled error")
		e = apperr.New(apperr.KindPersistenceFailure, apperr.CodeInternal, "internal server error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(e.Kind))
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: e})
}

// callerOf returns the authenticated caller; routes are always wrapped by
// the auth middleware
func callerOf(r *http.Request) (contracts.Caller, error) {
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		return contracts.Caller{}, apperr.New(apperr.KindUnauthenticated, apperr.CodeInvalidToken, "missing caller")
	}
	return caller, nil
}

// decodeBody decodes a JSON body into dst and, for structs, validates its tags
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.InvalidParameter("body", fmt.Sprintf("malformed JSON body: %v", err))
	}
	if reflect.Indirect(reflect.ValueOf(dst)).Kind() != reflect.Struct {
		return nil
	}
	return validateStruct(dst)
}

// validateStruct maps the first validation failure to invalid_parameter
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperr.InvalidParameter(fe.Field(), formatValidationError(fe))
	}
	return apperr.InvalidParameter("body", err.Error())
}

func formatValidationError(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "boolean":
		return fmt.Sprintf("%s must be a boolean", field)
	case "number":
		return fmt.Sprintf("%s must be a non-negative integer", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apperr.InvalidParameter(name, fmt.Sprintf("%s must be a valid UUID", name))
	}
	return id, nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidParameter(name, fmt.Sprintf("%s must be a positive integer", name))
	}
	return id, nil
}

// optionalUUID parses an already validated query value
func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id := uuid.MustParse(s)
	return &id
}

// optionalInt64 parses a numeric query value. The number tag does not bound
// the width, so out-of-range values are rejected here.
func optionalInt64(name, s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, apperr.InvalidParameter(name, fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return &v, nil
}

func parseBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}
