package httpdto

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

func NewErrorResponse(err string, code string) ErrorResponse {
	return ErrorResponse{
		OK:    false,
		Error: err,
		Code:  code,
	}
}

// StatusResponse is returned by /ping and /health.
type StatusResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

func NewStatusResponse(status string) StatusResponse {
	return StatusResponse{OK: true, Status: status}
}
