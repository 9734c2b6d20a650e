// Package models defines the core data structures for LeadPipe.
//
// It includes conversation state, contacts, inbound messages and the JSON
// envelope used by the HTTP API, which are shared across modules.
package models

// APIStatus is the status field of every JSON API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the envelope for admin and stats endpoints.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success wraps result in an ok response.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage is Success with a human-readable message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error builds an error response carrying message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
