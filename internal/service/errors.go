// errors.go — ошибки сервисного слоя.
package service

import "errors"

var (
	// ErrMissingDeviceID — disconnect без deviceId.
	ErrMissingDeviceID = errors.New("не задан deviceId")
)
