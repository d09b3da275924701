// Пакет errors — конструкторы стандартных ошибок координатора.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок Coordinator API.
const (
	CodeInvalidName     = "INVALID_NAME"
	CodeMissingFields   = "MISSING_FIELDS"
	CodeMissingDeviceID = "MISSING_DEVICE_ID"
	CodeValidationError = "VALIDATION_ERROR"
	CodeShuttingDown    = "SHUTTING_DOWN"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// InvalidName — 400 имя устройства короче 3 символов.
func InvalidName(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeInvalidName, "Device name must be at least 3 characters")
}

// MissingFields — 400 не заданы fileInfo, peerIds или senderId.
func MissingFields(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeMissingFields, "Missing required fields")
}

// MissingDeviceID — 400 не задан deviceId.
func MissingDeviceID(w http.ResponseWriter) {
	WriteError(w, http.StatusBadRequest, CodeMissingDeviceID, "Device ID is required")
}

// ValidationError — 400 тело запроса не разбирается как JSON.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// ShuttingDown — 503 координатор останавливается.
func ShuttingDown(w http.ResponseWriter) {
	WriteError(w, http.StatusServiceUnavailable, CodeShuttingDown, "Coordinator is shutting down")
}

// InternalError — 500 внутренняя ошибка. Детали в ответ не попадают.
func InternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}
