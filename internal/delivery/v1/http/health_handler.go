package http

import (
	"net/http"

	"github.com/DRSN-tech/visual-search/internal/infrastructure/snapshot"
)

// SnapshotStatus отдаёт состояние текущего снапшота.
type SnapshotStatus interface {
	Status() snapshot.Status
}

type HealthHandler struct {
	snapshots SnapshotStatus
}

func NewHealthHandler(snapshots SnapshotStatus) *HealthHandler {
	return &HealthHandler{snapshots: snapshots}
}

// healthz
//
//	@Summary	Liveness
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/healthz [get]
func (h *HealthHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz
//
//	@Summary	Readiness: снапшот загружен
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	snapshot.Status
//	@Failure	503	{object}	snapshot.Status
//	@Router		/readyz [get]
func (h *HealthHandler) readyz(w http.ResponseWriter, _ *http.Request) {
	st := h.snapshots.Status()
	if !st.Loaded {
		WriteSuccess(w, http.StatusServiceUnavailable, st)
		return
	}
	WriteSuccess(w, http.StatusOK, st)
}
