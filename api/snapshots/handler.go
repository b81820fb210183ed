// Package snapshots lists stored fleet snapshots over HTTP.
package snapshots

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kilianp07/robofleet/api"
	"github.com/kilianp07/robofleet/infra/store"
)

// History lists stored snapshots, newest first.
type History interface {
	History(ctx context.Context, limit int) ([]store.Info, error)
}

// NewHistoryHandler serves GET /api/snapshots?limit=n.
func NewHistoryHandler(h History) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		infos, err := h.History(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if infos == nil {
			infos = []store.Info{}
		}
		api.WriteJSON(w, http.StatusOK, infos)
	})
}
