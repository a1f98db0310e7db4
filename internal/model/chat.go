package model

// ChatRequest representa a requisição para o endpoint de chat.
// Text é ponteiro para distinguir campo ausente de string vazia.
type ChatRequest struct {
	Text *string `json:"text"`
}

// ChatResponse representa a resposta do endpoint de chat
type ChatResponse struct {
	Response string `json:"response"`
}

// ErrorResponse é o corpo de toda resposta de erro da API
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse representa a resposta do health check
type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	MsgInvalidText    = "Message is required and must be a string"
	MsgInternalError  = "Internal server error"
	MsgBodyTooLarge   = "Request entity too large"
	MsgNotFound       = "Not found"
	MsgMethodNotAllow = "Method not allowed"
	MsgBackendRunning = "Study Buddy backend is running"
	StatusOK          = "ok"
)
