package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codemind/internal/service"
)

// CodeHandler exposes the AI operations and the fix-attempt log. Demo-mode
// results are successful responses that carry a "warning".
type CodeHandler struct {
	svc    *service.CodeService
	logger *slog.Logger
}

func NewCodeHandler(svc *service.CodeService, logger *slog.Logger) *CodeHandler {
	return &CodeHandler{svc: svc, logger: logger}
}

// HTTP: POST /api/code/generate → 201 {data: {code, historyId}}
func (h *CodeHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var in service.GenerateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.svc.Generate(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    map[string]string{"code": out.Code, "historyId": out.HistoryID},
		Warning: out.Warning,
	})
}

// HTTP: POST /api/code/fix → {data: {code, errorLogId}}
func (h *CodeHandler) HandleFix(w http.ResponseWriter, r *http.Request) {
	var in service.FixInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.svc.Fix(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]string{"code": out.Code, "errorLogId": out.ErrorLogID},
		Warning: out.Warning,
	})
}

// HTTP: POST /api/code/explain → {data: {explanation}}
func (h *CodeHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var in service.CodeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.svc.Explain(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]string{"explanation": out.Text},
		Warning: out.Warning,
	})
}

// HTTP: POST /api/code/optimize → {data: {code}}
func (h *CodeHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var in service.CodeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.svc.Optimize(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCode(w, out)
}

// HTTP: POST /api/code/convert → {data: {code}}
func (h *CodeHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var in service.ConvertInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.svc.Convert(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCode(w, out)
}

// HTTP: GET /api/code/errors?limit=20
func (h *CodeHandler) HandleListErrors(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.ErrorLogs(r.Context(), userID(r), atoiOr(r.URL.Query().Get("limit"), 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: logs})
}

// HTTP: PATCH /api/code/errors/{id}/resolve
func (h *CodeHandler) HandleResolveError(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.ResolveError(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: entry})
}

func writeCode(w http.ResponseWriter, out *service.TextOutput) {
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    map[string]string{"code": out.Text},
		Warning: out.Warning,
	})
}
