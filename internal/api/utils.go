package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware" // For RequestID
	"github.com/go-playground/validator/v10"

	"github.com/FACorreiaa/go-account-service/internal/types"
)

const internalErrorMessage = "Something went wrong, please try again later"

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrEmptyBody is returned by DecodeJSONBody when the request carried no JSON value.
var ErrEmptyBody = errors.New("body must not be empty")

// ErrorResponse writes a failure envelope with the given status and message.
func ErrorResponse(w http.ResponseWriter, r *http.Request, status int, message string, details ...string) {
	resp := types.NewApiResponse(status, nil, message)
	resp.Errors = details
	WriteJSONResponse(w, r, status, resp)
}

// WriteError maps any error onto the envelope. Only ApiError messages reach
// the client; everything else, and upstream failures, become a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	reqID := middleware.GetReqID(r.Context())

	var apiErr *types.ApiError
	if !errors.As(err, &apiErr) {
		logger.ErrorContext(r.Context(), "Unhandled error", slog.Any("error", err), slog.String("request_id", reqID))
		ErrorResponse(w, r, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), apiErr.Message, slog.Any("error", apiErr.Cause()), slog.String("request_id", reqID))
		ErrorResponse(w, r, apiErr.StatusCode, internalErrorMessage)
		return
	}

	logger.WarnContext(r.Context(), "Request rejected",
		slog.Int("status", apiErr.StatusCode),
		slog.String("reason", apiErr.Message),
		slog.String("request_id", reqID),
	)
	ErrorResponse(w, r, apiErr.StatusCode, apiErr.Message, apiErr.Errors...)
}

// WriteSuccess wraps data in a success envelope.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data any, message string) {
	WriteJSONResponse(w, r, status, types.NewApiResponse(status, data, message))
}

// WriteJSONResponse encodes the data to JSON and writes the response header and body.
func WriteJSONResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}

	js, err := json.Marshal(data)
	if err != nil {
		reqID := middleware.GetReqID(r.Context())
		slog.ErrorContext(r.Context(), "Failed to marshal JSON response",
			slog.Any("error", err),
			slog.String("request_id", reqID),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Set headers *before* writing status or body
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	if err != nil {
		// Client already received the status code
		reqID := middleware.GetReqID(r.Context())
		slog.ErrorContext(r.Context(), "Failed to write response body",
			slog.Any("error", err),
			slog.String("request_id", reqID),
		)
	}
}

// DecodeJSONBody reads and decodes a JSON request body safely.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)

		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")

		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q (wanted %s)", unmarshalTypeError.Field, unmarshalTypeError.Type)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)

		case errors.Is(err, io.EOF):
			return ErrEmptyBody

		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			fieldName = strings.Trim(fieldName, `"`)
			return fmt.Errorf("body contains unknown key %q", fieldName)

		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBytesError.Limit)

		case errors.As(err, &invalidUnmarshalError):
			panic(fmt.Errorf("developer error: invalid argument passed to json.Unmarshal: %w", err))

		default:
			return fmt.Errorf("error decoding JSON body: %w", err)
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// ValidateStruct runs the struct's `validate` tags and returns a 400 ApiError
// listing every failing field.
func ValidateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewValidationError("Invalid request")
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			details = append(details, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		default:
			details = append(details, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return types.NewValidationError("Invalid request", details...)
}
