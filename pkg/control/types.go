package control

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/core-tools/hsu-procsup-go/pkg/errors"
	"github.com/core-tools/hsu-procsup-go/pkg/processmanagement"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Type    errors.ErrorType  `json:"type,omitempty"`
	Message string            `json:"message,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

type ProcessListResponse struct {
	Processes []processmanagement.ProcessStatus `json:"processes"`
}

// OperationResponse reports a single-process operation and the resulting status
type OperationResponse struct {
	Success bool                             `json:"success"`
	Name    string                           `json:"name"`
	Status  *processmanagement.ProcessStatus `json:"status,omitempty"`
}

// BulkRequest selects the names of a bulk operation; empty means all
type BulkRequest struct {
	Names []string `json:"names,omitempty"`
}

type BulkEntryResponse struct {
	Name      string           `json:"name"`
	Success   bool             `json:"success"`
	Fatal     bool             `json:"fatal"`
	Error     string           `json:"error,omitempty"`
	ErrorType errors.ErrorType `json:"error_type,omitempty"`
}

type BulkResponse struct {
	Operation string              `json:"operation"`
	Success   bool                `json:"success"`
	Results   []BulkEntryResponse `json:"results"`
}

type HealthResponse struct {
	Status          string                            `json:"status"`
	SupervisorState processmanagement.SupervisorState `json:"supervisor_state"`
	Processes       int                               `json:"processes"`
	Uptime          string                            `json:"uptime"`
}

// HTTPStatus maps a domain error to the status code the control API answers with
func HTTPStatus(err error) int {
	switch errors.TypeOf(err) {
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeDuplicateName, errors.ErrorTypeAlreadyRunning, errors.ErrorTypeNotRunning:
		return http.StatusConflict
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeTerminationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func newErrorResponse(err error) ErrorResponse {
	response := ErrorResponse{
		Success: false,
		Error:   err.Error(),
		Type:    errors.TypeOf(err),
	}

	var domainErr *errors.DomainError
	if stderrors.As(err, &domainErr) {
		response.Message = domainErr.Message
		if len(domainErr.Context) > 0 {
			response.Context = make(map[string]string, len(domainErr.Context))
			for k, v := range domainErr.Context {
				response.Context[k] = fmt.Sprint(v)
			}
		}
	}
	return response
}

// Err rebuilds a typed error from a response body. The type falls back to
// the one implied by the status code when the server did not report it.
func (r ErrorResponse) Err(statusCode int) error {
	errorType := r.Type
	if errorType == "" {
		errorType = typeForStatus(statusCode)
	}
	message := r.Message
	if message == "" {
		message = trimTypePrefix(r.Error, errorType)
	}
	if message == "" {
		message = http.StatusText(statusCode)
	}

	err := errors.New(errorType, message, nil)
	for k, v := range r.Context {
		err.WithContext(k, v)
	}
	return err
}

func typeForStatus(statusCode int) errors.ErrorType {
	switch statusCode {
	case http.StatusNotFound:
		return errors.ErrorTypeNotFound
	case http.StatusBadRequest:
		return errors.ErrorTypeValidation
	case http.StatusGatewayTimeout:
		return errors.ErrorTypeTerminationTimeout
	default:
		return errors.ErrorTypeInternal
	}
}

func newBulkResponse(result processmanagement.BulkResult) BulkResponse {
	response := BulkResponse{
		Operation: result.Operation,
		Success:   !result.HasFailures(),
		Results:   make([]BulkEntryResponse, 0, len(result.Entries)),
	}
	for _, entry := range result.Entries {
		item := BulkEntryResponse{
			Name:    entry.Name,
			Success: entry.Err == nil,
			Fatal:   entry.Fatal(),
		}
		if entry.Err != nil {
			item.Error = entry.Err.Error()
			item.ErrorType = errors.TypeOf(entry.Err)
		}
		response.Results = append(response.Results, item)
	}
	return response
}

// BulkResult converts the response back into the supervisor's result type
func (r BulkResponse) BulkResult() processmanagement.BulkResult {
	result := processmanagement.BulkResult{Operation: r.Operation}
	for _, item := range r.Results {
		entry := processmanagement.BulkEntry{Name: item.Name}
		if !item.Success {
			errorType := item.ErrorType
			if errorType == "" {
				errorType = errors.ErrorTypeInternal
			}
			entry.Err = errors.New(errorType, trimTypePrefix(item.Error, errorType), nil)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result
}

// trimTypePrefix drops the "type: " lead of a rendered DomainError so it is not repeated
func trimTypePrefix(message string, errorType errors.ErrorType) string {
	return strings.TrimPrefix(message, string(errorType)+": ")
}
