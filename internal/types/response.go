package types

// ApiResponse is the envelope every endpoint answers with.
type ApiResponse struct {
	StatusCode int      `json:"statusCode" example:"200"`
	Data       any      `json:"data"`
	Message    string   `json:"message" example:"Success"`
	Success    bool     `json:"success" example:"true"`
	Errors     []string `json:"errors,omitempty"`
}

func NewApiResponse(statusCode int, data any, message string) ApiResponse {
	if message == "" {
		message = "Success"
	}
	return ApiResponse{
		StatusCode: statusCode,
		Data:       data,
		Message:    message,
		Success:    statusCode < 400,
	}
}
