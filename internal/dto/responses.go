package dto

// ErrorResponse — стандартная форма ошибки API.
type ErrorResponse struct {
	Error string `json:"error"`
}
