package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"leadline.io/internal/audit"
	"leadline.io/internal/crm"
	"leadline.io/internal/leads"
)

type createLeadRequest struct {
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	Phone   string         `json:"phone"`
	Company string         `json:"company"`
	Status  crm.LeadStatus `json:"status"`
	Source  string         `json:"source"`
	Value   *int64         `json:"value"`
	Notes   string         `json:"notes"`
	OwnerID string         `json:"owner_id"`
}

type updateLeadRequest struct {
	Name    *string         `json:"name"`
	Email   *string         `json:"email"`
	Phone   *string         `json:"phone"`
	Company *string         `json:"company"`
	Status  *crm.LeadStatus `json:"status"`
	Source  *string         `json:"source"`
	Value   *int64          `json:"value"`
	Notes   *string         `json:"notes"`
	OwnerID *string         `json:"owner_id"`
}

func (a *API) handleListLeads(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, limit, err := parsePage(q.Get("page"), q.Get("limit"), 10, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	// The owner filter only survives for roles that read all leads; the
	// service pins sales executives to their own scope regardless.
	rows, total, err := a.leads.List(r.Context(), actor, crm.LeadFilter{
		OwnerID: strings.TrimSpace(q.Get("owner_id")),
		Status:  crm.LeadStatus(strings.TrimSpace(q.Get("status"))),
		Search:  q.Get("search"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
		Offset:  (page - 1) * limit,
		Limit:   limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if rows == nil {
		rows = []crm.Lead{}
	}
	writeList(w, rows, newPagination(total, page, limit))
}

func (a *API) handleGetLead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	lead, err := a.leads.Get(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, lead)
}

func (a *API) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	lead, err := a.leads.Create(r.Context(), actor, leads.CreateInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Status:  req.Status,
		Source:  req.Source,
		Value:   req.Value,
		Notes:   req.Notes,
		OwnerID: req.OwnerID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "lead.create", map[string]any{
		"lead_id":  lead.ID,
		"owner_id": lead.OwnerID,
	})
	w.Header().Set("Location", "/api/v1/leads/"+lead.ID)
	writeData(w, http.StatusCreated, lead)
}

func (a *API) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req updateLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	lead, err := a.leads.Update(r.Context(), actor, mux.Vars(r)["id"], crm.LeadUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Status:  req.Status,
		Source:  req.Source,
		Value:   req.Value,
		Notes:   req.Notes,
		OwnerID: req.OwnerID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "lead.update", map[string]any{
		"lead_id": lead.ID,
	})
	writeData(w, http.StatusOK, lead)
}

func (a *API) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if err := a.leads.Delete(r.Context(), actor, id); err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "lead.delete", map[string]any{
		"lead_id": id,
	})
	writeData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// parsePage validates page/limit query parameters; page is 1-based.
func parsePage(pageRaw, limitRaw string, defLimit, maxLimit int) (page, limit int, err error) {
	page, err = parseBoundedInt(pageRaw, 1, 1, 1<<30, "page")
	if err != nil {
		return 0, 0, err
	}
	limit, err = parseBoundedInt(limitRaw, defLimit, 1, maxLimit, "limit")
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func parseBoundedInt(raw string, def, min, max int, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New(name + " out of range")
	}
	return val, nil
}
