package commands

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/robofleet/api"
	coremqtt "github.com/kilianp07/robofleet/core/mqtt"
)

// NewSubmitHandler serves POST /api/commands. The body is a command as sent
// over MQTT; the response carries its id and is 202 Accepted.
func NewSubmitHandler(q *Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd coremqtt.Command
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := q.Submit(cmd)
		switch {
		case err == nil:
			api.WriteJSON(w, http.StatusAccepted, Result{ID: id, Action: cmd.Action})
		case errors.Is(err, coremqtt.ErrUnknownAction), errors.Is(err, coremqtt.ErrMalformedCommand):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	})
}

// NewResultHandler serves GET /api/commands/{id}.
func NewResultHandler(q *Queue) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := q.Result(r.PathValue("id"))
		if !ok {
			http.Error(w, "unknown command", http.StatusNotFound)
			return
		}
		api.WriteJSON(w, http.StatusOK, res)
	})
}
