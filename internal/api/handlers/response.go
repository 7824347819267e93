package handlers

import (
	"github.com/danielgtaylor/huma/v2"
)

// APIError is the body of every failed operation: {success, error, details}.
// It implements huma.StatusError, so huma writes it as the response body.
type APIError struct {
	status  int
	Success bool     `json:"success"`
	Err     string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func (e *APIError) Error() string  { return e.Err }
func (e *APIError) GetStatus() int { return e.status }

// InitErrors replaces huma's error factory. Validation failures keep one
// detail per offending field instead of huma's problem+json document.
func InitErrors() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		out := &APIError{status: status, Err: msg}
		for _, e := range errs {
			out.Details = append(out.Details, e.Error())
		}
		return out
	}
}

// EmptyInput is the input of operations that take no parameters.
type EmptyInput struct{}

// DataBody is the success envelope.
type DataBody[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// DataOutput is the huma output wrapper for DataBody.
type DataOutput[T any] struct {
	Body DataBody[T]
}

// OK wraps data in a success envelope.
func OK[T any](data T) *DataOutput[T] {
	return &DataOutput[T]{Body: DataBody[T]{Success: true, Data: data}}
}
