package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/devsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/devsearch/pkg/errors"
)

func (h *Handler) ListIndexes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": h.reg.IndexNames()})
}

func (h *Handler) CreateIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var cfg index.Config
	if err := decodeBody(w, r, &cfg); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.reg.CreateIndex(name, cfg); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "index": name})
}

func (h *Handler) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.reg.DeleteIndex(name) {
		h.notFound(w, r, name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.reg.ClearIndex(name) {
		h.notFound(w, r, name)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "index": name})
}

func (h *Handler) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.reg.RebuildIndex(name) {
		h.notFound(w, r, name)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt", "index": name})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	stats := h.reg.Stats(name)
	if stats == nil {
		h.notFound(w, r, name)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// AddDocuments accepts either one document or a JSON array of them. An
// array is applied all-or-nothing.
func (h *Handler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.reg.Has(name) {
		h.notFound(w, r, name)
		return
	}
	var raw json.RawMessage
	if err := decodeBody(w, r, &raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	var docs []document.SearchDocument
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			h.writeError(w, r, apperrors.Invalidf("decoding documents: %v", err))
			return
		}
	} else {
		var doc document.SearchDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			h.writeError(w, r, apperrors.Invalidf("decoding document: %v", err))
			return
		}
		docs = []document.SearchDocument{doc}
	}
	if err := h.reg.AddDocuments(name, docs); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{"index": name, "indexed": len(docs)})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	doc, ok := h.reg.GetDocument(name, id)
	if !ok {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrIndexNotFound, http.StatusNotFound, "document %q in index %q", id, name))
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// UpdateDocument replaces the document at the path id. The body may omit
// the id but must not contradict it.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	if !h.reg.Has(name) {
		h.notFound(w, r, name)
		return
	}
	var doc document.SearchDocument
	if err := decodeBody(w, r, &doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	if doc.ID == "" {
		doc.ID = id
	}
	if doc.ID != id {
		h.writeError(w, r, apperrors.Invalidf("document id %q does not match path id %q", doc.ID, id))
		return
	}
	if err := h.reg.UpdateDocument(name, doc); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "id": id})
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("name"), r.PathValue("id")
	if !h.reg.Has(name) {
		h.notFound(w, r, name)
		return
	}
	if !h.reg.RemoveDocument(name, id) {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrIndexNotFound, http.StatusNotFound, "document %q in index %q", id, name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.reg.Has(name) {
		h.notFound(w, r, name)
		return
	}
	payload, err := h.reg.Export(name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.snapshot.json"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, payload); err != nil {
		h.logger.Error("failed to write export", "index", name, "error", err)
	}
}

// Import installs the snapshot in the body under the path name, replacing
// any existing index.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, r, bodyError(err))
		return
	}
	if err := h.reg.Import(name, string(body)); err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{"status": "imported", "index": name}
	if stats := h.reg.Stats(name); stats != nil {
		resp["documents"] = stats.DocumentCount
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
	}
	return apperrors.Invalidf("decoding request body: %v", err)
}
