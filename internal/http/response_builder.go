package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/store"
	"fintrack/internal/summary"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value to encode. A nil body writes only the status.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded")
}

// MethodNotAllowedError creates a 405 response listing the allowed methods.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").
		Header("Allow", allowedMethods)
}

// writeError maps service errors onto status codes. Unexpected errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, services.ErrValidation):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, store.ErrNotFound):
		NotFoundError("not found").Write(w)
	default:
		ctx := r.Context()
		log.NewStructuredLogger(log.FromContext(ctx)).LogError(ctx, "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().
				WithRequestID(trace.GetRequestID(ctx)).
				WithUser(identity.UserIDFromContext(ctx)).
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, ""))
		InternalServerError("internal error").Write(w)
	}
}

type transactionResponse struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Type        core.Kind       `json:"type"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func newTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Description: t.Description,
		Category:    t.Category,
		Amount:      t.Amount,
		Type:        t.Kind,
		CreatedAt:   t.CreatedAt,
	}
}

type incomeStreamResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      core.Cadence    `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Monthly   decimal.Decimal `json:"monthlyAmount"`
	StartDate time.Time       `json:"startDate"`
	EndDate   *time.Time      `json:"endDate,omitempty"`
}

func newIncomeStreamResponse(s core.IncomeStream) incomeStreamResponse {
	return incomeStreamResponse{
		ID:        s.ID,
		Name:      s.Name,
		Type:      s.Cadence,
		Amount:    s.Amount,
		Monthly:   summary.MonthlyEquivalent(s),
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
	}
}

type summaryResponse struct {
	summary.Summary
	ActiveStreams []incomeStreamResponse `json:"activeStreams"`
	FellBack      bool                   `json:"fellBack"`
}

func newSummaryResponse(s summary.Summary) summaryResponse {
	active := make([]incomeStreamResponse, 0, len(s.ActiveStreams))
	for _, is := range s.ActiveStreams {
		active = append(active, newIncomeStreamResponse(is))
	}
	return summaryResponse{Summary: s, ActiveStreams: active, FellBack: s.FellBack()}
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
