// ws.go — upgrade HTTP-запроса на дуплексный канал.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/sharepool/internal/api/errors"
)

// ServeWS принимает дуплексное соединение. Во время остановки новые
// соединения отклоняются до upgrade.
func (h *APIHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.duplex.Draining() {
		apierrors.ShuttingDown(w)
		return
	}
	h.duplex.ServeWS(w, r)
}
