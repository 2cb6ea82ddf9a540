package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/storefront/internal/apperrors"
)

// Error codes, stable part of error response
const (
	ValidationErrorType   = "validation_failed"
	DecodingErrorType     = "decoding_failed"
	DuplicateEmailType    = "duplicate_email"
	InvalidCredentialType = "invalid_credentials"
	UnauthenticatedType   = "unauthenticated"
	StoreUnavailableType  = "store_unavailable"
	RateLimitedType       = "rate_limited"
	InternalErrorType     = "internal_error"
)

// Max size of JSON request body
const maxBodySize = 1 << 20

var validate = validator.New()

func init() {
	configureValidator(validate)
}

type Struct any

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	JSONWithStatus(w, data, http.StatusOK)
}

// Render error with the code
func Error(w http.ResponseWriter, code string, message string, status int) {
	JSONWithStatus(w, ErrorResponse{Error: code, Message: message}, status)
}

// Render the well known app error
// Unknown errors become internal errors, the details are not exposed
func AppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		Error(w, StoreUnavailableType, "Service temporarily unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		Error(w, DuplicateEmailType, "User with this email already exists", http.StatusConflict)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		Error(w, InvalidCredentialType, "Invalid email or password", http.StatusUnauthorized)
	case isTokenError(err):
		Unauthorized(w)
	default:
		Error(w, InternalErrorType, "Internal server error", http.StatusInternalServerError)
	}
}

// Same answer for every token problem: caller must not learn why the token rejected
func Unauthorized(w http.ResponseWriter) {
	Error(w, UnauthenticatedType, "Unauthorized", http.StatusUnauthorized)
}

func isTokenError(err error) bool {
	for _, target := range []error{
		apperrors.ErrInvalidToken,
		apperrors.ErrExpiredToken,
		apperrors.ErrRefreshTokenNotFound,
		apperrors.ErrRefreshTokenIsUsed,
		apperrors.ErrRefreshTokenRevoked,
		apperrors.ErrRefreshTokenExpired,
		apperrors.ErrUserNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	response := ErrorResponse{
		Error:   DecodingErrorType,
		Message: "",
	}

	// Try to provide more specific error message based on error type
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		response.Message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	default:
		response.Message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		Error:   ValidationErrorType,
		Message: "Request validation failed",
		Fields:  make(map[string]string, len(errs)),
	}

	for _, fieldError := range errs {
		response.Fields[fieldError.Field()] = validationMessage(fieldError)
	}

	JSONWithStatus(w, response, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	err = validate.Struct(value)
	if err != nil {
		// pretty sure cast will be ok cause expecting T is valid struct
		errs := err.(validator.ValidationErrors)
		ValidationErrors(w, errs)
		return value, err
	}

	return value, nil
}

// Send data as json and enforce status code
func JSONWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
