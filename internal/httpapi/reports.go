package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentdesk/internal/commission"
	"rentdesk/internal/models"
	"rentdesk/internal/period"
)

const (
	defaultPeriodCount = 6
	maxPeriodCount     = 48
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type periodResponse struct {
	Period string `json:"period"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Label  string `json:"label"`
	Days   int    `json:"days"`
}

func (h *Handler) handleCommissionReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, ok := h.buildCommissionReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleCommissionExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, ok := h.buildCommissionReport(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := commission.WriteXLSX(&buf, report); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="commissions-%s.xlsx"`, report.Period))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) buildCommissionReport(w http.ResponseWriter, r *http.Request) (commission.Report, bool) {
	session, ok := requirePermission(w, r, permissionReportRead)
	if !ok {
		return commission.Report{}, false
	}
	p := period.Containing(h.now())
	if raw := strings.TrimSpace(r.URL.Query().Get("period")); raw != "" {
		parsed, err := period.Parse(raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", err.Error())
			return commission.Report{}, false
		}
		p = parsed
	}

	ctx := r.Context()
	entries, err := h.store.ListCommissionEntries(ctx, session.AgencyID, p.Start(), p.End())
	if err != nil {
		h.writeStoreError(w, r, err)
		return commission.Report{}, false
	}
	costs, err := h.store.ListMaintenanceCosts(ctx, session.AgencyID, p.Start(), p.End())
	if err != nil {
		h.writeStoreError(w, r, err)
		return commission.Report{}, false
	}
	users, err := h.store.ListUsers(ctx, session.AgencyID, "")
	if err != nil {
		h.writeStoreError(w, r, err)
		return commission.Report{}, false
	}
	return commission.Aggregate(p, entries, costs, userNames(users)), true
}

func (h *Handler) handlePeriods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if _, ok := requireSession(w, r); !ok {
		return
	}
	query := r.URL.Query()
	around := h.now()
	if raw := strings.TrimSpace(query.Get("around")); raw != "" {
		parsed, err := time.Parse(period.DateLayout, raw)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "around must be YYYY-MM-DD")
			return
		}
		around = parsed
	}
	count := defaultPeriodCount
	if raw := strings.TrimSpace(query.Get("count")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxPeriodCount {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", fmt.Sprintf("count must be between 1 and %d", maxPeriodCount))
			return
		}
		count = parsed
	}

	periods := period.Around(around, count)
	items := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		items = append(items, periodResponse{
			Period: p.String(),
			Start:  p.Start().Format(period.DateLayout),
			End:    p.End().Format(period.DateLayout),
			Label:  p.Label(),
			Days:   p.Days(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current": period.Containing(around).String(),
		"items":   items,
	})
}

func userNames(users []models.User) map[string]string {
	names := make(map[string]string, len(users))
	for _, user := range users {
		names[user.UserID] = user.FullName
	}
	return names
}
