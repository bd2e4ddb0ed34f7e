package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/rag"
)

// QueryHandler serves retrieval queries.
type QueryHandler struct {
	service *rag.Service
	logger  *zap.Logger
}

// NewQueryHandler creates the query handler.
func NewQueryHandler(service *rag.Service, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{service: service, logger: logger}
}

// queryRequest is the POST /api/v1/query body. Mode defaults to hybrid.
type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// HandleQuery handles POST /api/v1/query.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, llm.NewError(llm.ErrInvalidRequest, "method not allowed"), nil)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, llm.NewError(llm.ErrInvalidRequest, "malformed JSON body"), nil)
		return
	}
	if req.Mode == "" {
		req.Mode = string(rag.QueryModeHybrid)
	}

	result, err := h.service.Query(r.Context(), req.Query, rag.QueryMode(req.Mode))
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}
