// Package dto holds the request and response bodies of the lead intake and broker billing API
package dto

// APIResponse is the envelope every endpoint answers with. Data carries the quote, lead or
// billing payload on success; Error carries an ErrorDetail when Success is false.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ErrorDetail is the machine readable part of a failed response. Code is the business error
// code (LEAD_NOT_FOUND, INVALID_SELECTION, ...) and Details holds validation messages.
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
