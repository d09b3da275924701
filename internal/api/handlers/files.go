// files.go — анонс и список файлов.
// POST /api/share-file, GET /api/files.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/sharepool/internal/api/errors"
	"github.com/bigkaa/sharepool/internal/domain/model"
	"github.com/bigkaa/sharepool/internal/registry"
)

type shareFileRequest struct {
	FileInfo json.RawMessage `json:"fileInfo"`
	PeerIDs  json.RawMessage `json:"peerIds"`
	SenderID json.RawMessage `json:"senderId"`
}

type shareFileResponse struct {
	Message string `json:"message"`
	FileID  string `json:"fileId"`
}

// toShareRequest переводит тело запроса в доменный запрос.
// Поля неподходящего типа остаются пустыми, реестр отвечает MissingFields.
func (req shareFileRequest) toShareRequest() registry.ShareRequest {
	out := registry.ShareRequest{SenderID: rawString(req.SenderID)}
	if len(req.FileInfo) > 0 {
		var info map[string]json.RawMessage
		if err := json.Unmarshal(req.FileInfo, &info); err == nil {
			out.FileInfo = info
		}
	}
	if len(req.PeerIDs) > 0 {
		var peers []string
		if err := json.Unmarshal(req.PeerIDs, &peers); err == nil {
			out.PeerIDs = peers
		}
	}
	return out
}

// ShareFile — POST /api/share-file.
func (h *APIHandler) ShareFile(w http.ResponseWriter, r *http.Request) {
	var req shareFileRequest
	if err := decodeBody(w, r, &req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	file, err := h.pool.ShareFile(req.toShareRequest())
	if err != nil {
		if errors.Is(err, registry.ErrMissingFields) {
			apierrors.MissingFields(w)
			return
		}
		h.logger.Error("Ошибка анонса файла", slog.String("error", err.Error()))
		apierrors.InternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, shareFileResponse{
		Message: "File shared successfully",
		FileID:  file.ID,
	})
}

// ListFiles — GET /api/files.
func (h *APIHandler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	files := h.pool.ListFiles()
	if files == nil {
		files = []model.SharedFile{}
	}
	writeJSON(w, http.StatusOK, files)
}
