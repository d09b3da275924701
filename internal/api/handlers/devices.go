// devices.go — регистрация, список и отключение устройств.
// POST /api/register, GET /api/peers, POST /api/disconnect.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/sharepool/internal/api/errors"
	"github.com/bigkaa/sharepool/internal/domain/model"
	"github.com/bigkaa/sharepool/internal/registry"
	"github.com/bigkaa/sharepool/internal/service"
)

type registerRequest struct {
	DeviceName json.RawMessage `json:"deviceName"`
}

type registerResponse struct {
	DeviceID   string       `json:"deviceId"`
	Message    string       `json:"message"`
	DeviceInfo model.Device `json:"deviceInfo"`
}

type disconnectRequest struct {
	DeviceID json.RawMessage `json:"deviceId"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// RegisterDevice — POST /api/register.
// Адрес устройства берётся из соединения, а не из тела запроса.
func (h *APIHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	device, err := h.pool.RegisterDevice(rawString(req.DeviceName), remoteIP(r))
	if err != nil {
		if errors.Is(err, registry.ErrInvalidName) {
			apierrors.InvalidName(w)
			return
		}
		h.logger.Error("Ошибка регистрации устройства", slog.String("error", err.Error()))
		apierrors.InternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		DeviceID:   device.ID,
		Message:    "Device registered successfully",
		DeviceInfo: device,
	})
}

// ListPeers — GET /api/peers. Пустой пул — пустой массив.
func (h *APIHandler) ListPeers(w http.ResponseWriter, _ *http.Request) {
	peers := h.pool.ListPeers()
	if peers == nil {
		peers = []model.Device{}
	}
	writeJSON(w, http.StatusOK, peers)
}

// Disconnect — POST /api/disconnect.
// Неизвестный deviceId — успешный ответ без изменений.
func (h *APIHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.pool.Disconnect(rawString(req.DeviceID)); err != nil {
		if errors.Is(err, service.ErrMissingDeviceID) {
			apierrors.MissingDeviceID(w)
			return
		}
		h.logger.Error("Ошибка отключения устройства", slog.String("error", err.Error()))
		apierrors.InternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Device disconnected successfully"})
}
