package httpapi

import (
	"errors"
	"net/http"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/services/policy"
)

var errMissingPage = errors.New("missing page parameter")

func pageParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	page := r.URL.Query().Get("page")
	if page == "" {
		writeError(w, http.StatusBadRequest, errMissingPage)
		return "", false
	}
	return page, true
}

func (a *API) getSnapshot(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.policy.Snapshot(page))
}

func (a *API) getGroups(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.policy.Groups(page))
}

func (a *API) getRequests(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	reqs, found := a.policy.RequestLog(page)
	if !found {
		reqs = []domain.Request{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (a *API) clearRequests(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": a.policy.ClearRequestLog(page)})
}

type filterRequest struct {
	Page string             `json:"page"`
	Type domain.RequestType `json:"type"`
	URL  string             `json:"url"`
}

func (a *API) filter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := a.policy.FilterRequest(req.Page, req.Type, req.URL)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type evaluation struct {
	Temporary domain.Color `json:"temporary"`
	Permanent domain.Color `json:"permanent"`
}

func (a *API) evaluate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := domain.ParseRequestType(q.Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	scope := q.Get("scope")
	if scope == "" {
		scope = "*"
	}
	host := hostname.Canonical(q.Get("hostname"))
	if !domain.ValidHostname(host) {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidHostname)
		return
	}
	tc, pc := a.policy.Evaluate(scope, host, t)
	writeJSON(w, http.StatusOK, evaluation{Temporary: tc, Permanent: pc})
}

type toggleRequest struct {
	Scope string `json:"scope"`
}

func (a *API) toggleSwitch(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	on, err := a.policy.ToggleSwitch(req.Scope)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": on})
}

type cellRequest struct {
	Scope    string             `json:"scope"`
	Hostname string             `json:"hostname"`
	Type     domain.RequestType `json:"type"`
	State    string             `json:"state"` // block, allow, graylist or clear
}

func (a *API) setCell(w http.ResponseWriter, r *http.Request) {
	var req cellRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.State == "clear" {
		writeJSON(w, http.StatusOK, map[string]bool{"removed": a.policy.ClearCell(req.Scope, req.Hostname, req.Type)})
		return
	}
	h, err := domain.ParseHue(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch h {
	case domain.Block:
		err = a.policy.BlockCell(req.Scope, req.Hostname, req.Type)
	case domain.Allow:
		err = a.policy.AllowCell(req.Scope, req.Hostname, req.Type)
	default:
		err = a.policy.GraylistCell(req.Scope, req.Hostname, req.Type)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getDiff(w http.ResponseWriter, r *http.Request) {
	page, ok := pageParam(w, r)
	if !ok {
		return
	}
	diff := a.policy.PendingDiff(page)
	if diff == nil {
		diff = []domain.DiffEntry{}
	}
	writeJSON(w, http.StatusOK, diff)
}

// diffRequest names the entries to apply. An empty Diff falls back to the
// pending diff of Page.
type diffRequest struct {
	Page string             `json:"page,omitempty"`
	Diff []domain.DiffEntry `json:"diff,omitempty"`
}

func (a *API) diffFrom(w http.ResponseWriter, r *http.Request) ([]domain.DiffEntry, bool) {
	var req diffRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if len(req.Diff) == 0 && req.Page != "" {
		return a.policy.PendingDiff(req.Page), true
	}
	return req.Diff, true
}

func (a *API) persist(w http.ResponseWriter, r *http.Request) {
	diff, ok := a.diffFrom(w, r)
	if !ok {
		return
	}
	changed, err := a.policy.Persist(r.Context(), diff)
	if err != nil {
		a.logger.Error(map[string]any{"error": err.Error()}, "persist_failed")
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (a *API) revert(w http.ResponseWriter, r *http.Request) {
	diff, ok := a.diffFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": a.policy.RevertScope(diff)})
}

func (a *API) revertAll(w http.ResponseWriter, _ *http.Request) {
	a.policy.RevertAll()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.policy.UserRules())
}

func (a *API) putRules(w http.ResponseWriter, r *http.Request) {
	var req policy.RuleTextsUpdate
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	texts, err := a.policy.SetUserRules(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, texts)
}

type scopeLevelBody struct {
	Level domain.ScopeLevel `json:"level"`
}

func (a *API) getScopeLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, scopeLevelBody{Level: a.policy.ScopeLevel()})
}

func (a *API) putScopeLevel(w http.ResponseWriter, r *http.Request) {
	var req scopeLevelBody
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.policy.SetScopeLevel(req.Level)
	writeJSON(w, http.StatusOK, req)
}

func (a *API) backup(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.policy.Backup())
}

func (a *API) restore(w http.ResponseWriter, r *http.Request) {
	var ud policy.UserData
	if err := decode(r, &ud); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.policy.Restore(r.Context(), ud); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) reset(w http.ResponseWriter, r *http.Request) {
	if err := a.policy.Reset(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.policy.Stats())
}
