package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"leadline.io/internal/crm"
)

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, err := parseBoundedInt(q.Get("limit"), 20, 1, 100, "limit")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	rows, unread, err := a.notify.List(r.Context(), actor.ID, crm.NotificationFilter{
		UnreadOnly: q.Get("unread_only") == "true",
		Limit:      limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if rows == nil {
		rows = []crm.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   rows,
		"unread": unread,
	})
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.notify.MarkRead(r.Context(), actor.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "read": true})
}

func (a *API) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := a.notify.MarkAllRead(r.Context(), actor.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"read": true})
}
