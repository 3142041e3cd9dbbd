package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"investcalc/pkg/investcalc"
)

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	// A view nobody reloaded yet is loaded on first use.
	if h.view.Generation() == 0 || r.URL.Query().Get("reload") == "1" {
		if err := h.view.Reload(r.Context()); err != nil {
			writeErrorResponse(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.view.Snapshot())
}

func (h *handler) getStocks(w http.ResponseWriter, r *http.Request) {
	entries, err := h.core.GetPortfolio(r.Context())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	stocks, err := h.core.GetStocks(r.Context())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	codes := make(map[string]*string, len(stocks))
	for _, s := range stocks {
		codes[strings.ToLower(s.Name)] = s.QuoteCode
	}
	result := make([]stockResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, stockResponse{
			Name:        e.Stock,
			QuoteCode:   codes[strings.ToLower(e.Stock)],
			TotalShares: e.TotalShares,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) setQuoteCode(w http.ResponseWriter, r *http.Request) {
	var payload quoteCodePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.core.SetQuoteCode(r.Context(), urlParam(r, "name"), payload.QuoteCode); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if err := h.view.Reload(r.Context()); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *handler) recordFlow(w http.ResponseWriter, r *http.Request) {
	var payload recordFlowPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	var (
		id  int64
		err error
	)
	if payload.Operation != "" {
		var op investcalc.Operation
		op, err = investcalc.ParseOperation(payload.Operation)
		if err == nil {
			id, err = h.core.RecordOperation(ctx, investcalc.OperationRequest{
				Operation: op,
				Stock:     payload.Stock,
				Day:       payload.Day,
				Shares:    payload.Shares,
				Total:     payload.Total,
				Comment:   payload.Comment,
			})
		}
	} else {
		if payload.Shares.IsNegative() {
			err = h.core.CheckHeld(ctx, payload.Stock, payload.Day, payload.Shares.Negated())
		}
		if err == nil {
			id, err = h.core.Record(ctx, investcalc.RecordRequest{
				Stock:   payload.Stock,
				Day:     payload.Day,
				Shares:  payload.Shares,
				Money:   payload.Money,
				Comment: payload.Comment,
			})
		}
	}
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *handler) getFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := h.core.GetFlows(r.Context(), stocksParam(r.URL.Query())...)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r.URL.Query())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	rows, err := h.core.GetHistory(r.Context(), filter)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if rows == nil {
		rows = []investcalc.HistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) deleteHistory(w http.ResponseWriter, r *http.Request) {
	var payload deleteHistoryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := h.core.DeleteSelection(r.Context(), investcalc.HistoryFilter{
		Stocks: payload.Stocks,
		From:   payload.From,
		To:     payload.To,
	}, payload.IDs)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (h *handler) importBatch(w http.ResponseWriter, r *http.Request) {
	var payload importPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	delimiter := payload.Delimiter
	if delimiter == "" {
		delimiter = h.delimiter
	}
	imported, err := h.core.ImportBatch(r.Context(), payload.Text, delimiter)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": imported})
}

func (h *handler) exportHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := historyFilter(query)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	delimiter := query.Get("delimiter")
	if delimiter == "" {
		delimiter = h.delimiter
	}
	text, err := h.core.ExportHistory(r.Context(), filter, delimiter)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (h *handler) refreshPrices(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "price refresh is not configured")
		return
	}
	if h.view.Generation() == 0 {
		if err := h.view.Reload(r.Context()); err != nil {
			writeErrorResponse(w, r, err)
			return
		}
	}
	reports, ok := h.view.RefreshPrices(h.refresher)
	if !ok {
		writeError(w, http.StatusConflict, "a price refresh is already running")
		return
	}
	if r.URL.Query().Get("wait") != "1" {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "generation": h.view.Generation()})
		return
	}
	select {
	case report := <-reports:
		writeJSON(w, http.StatusOK, report)
	case <-r.Context().Done():
		// The cycle keeps running; its results still reach the view.
	}
}

func (h *handler) setManualPrice(w http.ResponseWriter, r *http.Request) {
	var payload manualPricePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Price == nil {
		writeError(w, http.StatusBadRequest, "price is required")
		return
	}
	if err := h.view.SetManualPrice(r.Context(), urlParam(r, "name"), *payload.Price); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *handler) getOperationLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := normalizeLimitOffset(parseIntDefault(query.Get("limit"), 50), parseIntDefault(query.Get("offset"), 0))
	result, err := h.core.GetOperationLogs(r.Context(), limit, offset)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if result == nil {
		result = []investcalc.OperationLog{}
	}
	writeJSON(w, http.StatusOK, result)
}

// Helpers.

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func urlParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}

// stocksParam collects repeated and comma separated stock parameters.
func stocksParam(query url.Values) []string {
	var stocks []string
	for _, value := range query["stock"] {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				stocks = append(stocks, name)
			}
		}
	}
	return stocks
}

func historyFilter(query url.Values) (investcalc.HistoryFilter, error) {
	filter := investcalc.HistoryFilter{Stocks: stocksParam(query)}
	for _, bound := range []struct {
		key string
		dst *investcalc.Day
	}{{"from", &filter.From}, {"to", &filter.To}} {
		value := strings.TrimSpace(query.Get(bound.key))
		if value == "" {
			continue
		}
		d, err := investcalc.ParseDay(value)
		if err != nil {
			return filter, investcalc.WrapError(investcalc.ErrCodeInvalidInput, "invalid "+bound.key, err)
		}
		*bound.dst = d
	}
	return filter, nil
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func normalizeLimitOffset(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
