package api

// Response bodies for the ingest endpoint. The webhook client treats these
// as opaque text, so they are fixed strings rather than JSON.
const (
	msgParseFailure  = "Failed to parse data."
	msgSuccess       = "Successfully logged data."
	msgDeadLettered  = "There was an error, but logs were saved to database."
	msgUnrecoverable = "Something went wrong."
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}

// ErrorResponse is returned for JSON API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}
