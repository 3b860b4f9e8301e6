package domain

// Общий конверт ответа API
type APIError struct {
	Code    int      `json:"code,omitempty"`
	Text    string   `json:"text,omitempty"`
	Details []string `json:"details,omitempty"` // ошибки валидации по полям
}

type APIEnvelope struct {
	Error   *APIError `json:"error,omitempty"`
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Утилиты для сборки конвертов
func OkData(data any) APIEnvelope { return APIEnvelope{Data: data} }
func OkMessage(data any, msg string) APIEnvelope {
	return APIEnvelope{Data: data, Message: msg}
}
func Fail(code int, text string, details ...string) APIEnvelope {
	return APIEnvelope{Error: &APIError{Code: code, Text: text, Details: details}}
}
