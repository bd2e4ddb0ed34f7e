package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
	"github.com/BaSui01/raggate/rag"
)

// DocumentsHandler serves document insertion.
type DocumentsHandler struct {
	service *rag.Service
	// maxBatch bounds the number of documents per request.
	maxBatch int
	// maxDocBytes bounds one document's size. Zero disables the check.
	maxDocBytes int
	logger      *zap.Logger
}

// NewDocumentsHandler creates the insertion handler. maxBatch <= 0
// means 100.
func NewDocumentsHandler(service *rag.Service, maxBatch, maxDocBytes int, logger *zap.Logger) *DocumentsHandler {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentsHandler{service: service, maxBatch: maxBatch, maxDocBytes: maxDocBytes, logger: logger}
}

// insertRequest is the POST /api/v1/documents body.
type insertRequest struct {
	Documents []string `json:"documents"`
}

// HandleInsert handles POST /api/v1/documents.
func (h *DocumentsHandler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, llm.NewError(llm.ErrInvalidRequest, "method not allowed"), nil)
		return
	}

	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, llm.NewError(llm.ErrInvalidRequest, "malformed JSON body"), nil)
		return
	}
	if len(req.Documents) > h.maxBatch {
		WriteError(w, llm.NewError(llm.ErrInvalidRequest,
			fmt.Sprintf("batch of %d documents exceeds the limit of %d", len(req.Documents), h.maxBatch)), nil)
		return
	}
	if h.maxDocBytes > 0 {
		for i, doc := range req.Documents {
			if len(doc) > h.maxDocBytes {
				WriteError(w, llm.NewError(llm.ErrInvalidRequest,
					fmt.Sprintf("document %d is %d bytes, exceeding the limit of %d", i, len(doc), h.maxDocBytes)), nil)
				return
			}
		}
	}

	result, err := h.service.InsertDocuments(r.Context(), req.Documents)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}
