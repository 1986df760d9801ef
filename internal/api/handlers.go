package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/models"
	"passport-tracker/internal/search"
	"passport-tracker/internal/workflow"

	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

type stageActionRequest struct {
	Remarks string `json:"remarks"`
	Reason  string `json:"reason"`
}

// ==========================
// Applications
// ==========================

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	app, err := h.svc.Submit(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) listOwn(w http.ResponseWriter, r *http.Request) {
	apps, err := h.svc.ListOwn(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Track(r.Context(), principal(r), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	var upload models.DocumentUpload
	if err := decodeBody(w, r, &upload); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	doc, err := h.svc.UploadDocument(r.Context(), principal(r), chi.URLParam(r, "number"), upload)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ==========================
// Officer work
// ==========================

func (h *Handler) officerQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.svc.OfficerQueue(r.Context(), principal(r), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) stageAction(action workflow.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stageActionRequest
		if r.ContentLength != 0 {
			if err := decodeBody(w, r, &req); err != nil {
				writeError(w, r, h.logger, err)
				return
			}
		}

		ctx, p, stageID := r.Context(), principal(r), chi.URLParam(r, "id")
		var (
			res *workflow.Result
			err error
		)
		switch action {
		case workflow.ActionStart:
			res, err = h.svc.StartStage(ctx, p, stageID, req.Remarks)
		case workflow.ActionApprove:
			res, err = h.svc.ApproveStage(ctx, p, stageID, req.Remarks)
		case workflow.ActionReject:
			reason := req.Reason
			if reason == "" {
				reason = req.Remarks
			}
			res, err = h.svc.RejectStage(ctx, p, stageID, reason)
		}
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ==========================
// Administration and search
// ==========================

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) estimationAccuracy(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.EstimationAccuracy(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) searchApplications(w http.ResponseWriter, r *http.Request) {
	q := search.Query{Status: models.ApplicationStatus(strings.TrimSpace(r.URL.Query().Get("status")))}
	var err error
	if q.Size, err = intParam(r, "size"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if q.From, err = timeParam(r, "from", false); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if q.To, err = timeParam(r, "to", true); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		writeError(w, r, h.logger, badRequest("to", "to must not be before from"))
		return
	}

	res, err := h.svc.SearchApplications(r.Context(), principal(r), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ==========================
// Notifications
// ==========================

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	list, err := h.svc.Notifications(r.Context(), principal(r), unread, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": list})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkNotificationRead(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllNotificationsRead(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// ==========================
// Helpers
// ==========================

// principal is only called behind authenticate.
func principal(r *http.Request) models.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.NewValidationError([]errors.FieldError{{
			Field: "(body)", Code: "MALFORMED_JSON", Message: err.Error(),
		}})
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest(name, name+" must be a non-negative integer")
	}
	return n, nil
}

// timeParam accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func timeParam(r *http.Request, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, badRequest(name, name+" must be YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
