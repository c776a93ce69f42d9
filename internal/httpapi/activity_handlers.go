package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"leadline.io/internal/audit"
	"leadline.io/internal/crm"
	"leadline.io/internal/leads"
)

type addActivityRequest struct {
	Type        crm.ActivityType `json:"type"`
	Description string           `json:"description"`
	Metadata    map[string]any   `json:"metadata"`
}

type updateActivityRequest struct {
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (a *API) handleListActivities(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, limit, err := parsePage(q.Get("page"), q.Get("limit"), 50, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	rows, total, err := a.leads.ListActivities(r.Context(), actor, mux.Vars(r)["id"], crm.ActivityFilter{
		Type:   crm.ActivityType(strings.TrimSpace(q.Get("type"))),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if rows == nil {
		rows = []crm.Activity{}
	}
	writeList(w, rows, newPagination(total, page, limit))
}

func (a *API) handleAddActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req addActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	act, err := a.leads.AddActivity(r.Context(), actor, mux.Vars(r)["id"], leads.AddActivityInput{
		Type:        req.Type,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "activity.create", map[string]any{
		"activity_id": act.ID,
		"lead_id":     act.LeadID,
		"type":        string(act.Type),
	})
	writeData(w, http.StatusCreated, act)
}

func (a *API) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	act, err := a.leads.UpdateActivity(r.Context(), actor, mux.Vars(r)["id"], crm.ActivityUpdate{
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "activity.update", map[string]any{
		"activity_id": act.ID,
	})
	writeData(w, http.StatusOK, act)
}

func (a *API) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.leads.DeleteActivity(r.Context(), actor, id); err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "activity.delete", map[string]any{
		"activity_id": id,
	})
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	stats, err := a.leads.Stats(r.Context(), actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
