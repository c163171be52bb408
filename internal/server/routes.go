package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/paramem/internal/engine"
	"github.com/lazypower/paramem/internal/facts"
	"github.com/lazypower/paramem/internal/factstore"
	"github.com/lazypower/paramem/internal/logger"
	"github.com/lazypower/paramem/internal/transcript"
)

type entityJSON struct {
	Type string `json:"type"`
	Slug string `json:"slug"`
	Path string `json:"path"`
}

func toEntityJSON(ref facts.EntityRef) entityJSON {
	return entityJSON{Type: string(ref.Type), Slug: ref.Slug, Path: ref.Path()}
}

// entityRef resolves the {type}/{slug} URL parameters.
func entityRef(r *http.Request) (facts.EntityRef, error) {
	return facts.NewRef(chi.URLParam(r, "type"), chi.URLParam(r, "slug"))
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	var filter facts.EntityType
	if t := r.URL.Query().Get("type"); t != "" {
		var err error
		if filter, err = facts.ParseEntityType(t); err != nil {
			writeErr(w, err)
			return
		}
	}

	refs, err := s.engine.Entities(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]entityJSON, 0, len(refs))
	for _, ref := range refs {
		if filter != "" && ref.Type != filter {
			continue
		}
		out = append(out, toEntityJSON(ref))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "entities": out})
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   string `json:"type"`
		Name   string `json:"name"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	ref, err := facts.NewRef(req.Type, req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}

	created, err := s.engine.Facts.CreateEntity(r.Context(), ref, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"entity": toEntityJSON(ref), "created": created})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	ref, err := entityRef(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	snap, err := s.engine.Facts.LoadActiveFacts(r.Context(), ref)
	if err != nil {
		writeErr(w, err)
		return
	}
	if snap.Document == nil {
		writeError(w, http.StatusNotFound, "entity "+ref.String()+" not found")
		return
	}

	doc := snap.Document
	writeJSON(w, http.StatusOK, map[string]any{
		"entity":        toEntityJSON(ref),
		"created":       doc.Created,
		"lastUpdated":   doc.LastUpdated,
		"createdReason": doc.CreatedReason,
		"active":        snap.Active,
		"related":       snap.Related,
		"superseded":    snap.Superseded(),
		"facts":         doc.Facts,
	})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	ref, err := entityRef(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	text, err := s.engine.Summary(r.Context(), ref)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(text))
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	ref, err := entityRef(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req struct {
		Content         string        `json:"content"`
		Category        string        `json:"category"`
		RelatedEntities []string      `json:"relatedEntities"`
		Supersedes      string        `json:"supersedes"`
		Source          *facts.Source `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	cat, err := facts.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.AddFact(r.Context(), factstore.NewFact{
		Entity:     ref,
		Content:    content,
		Category:   cat,
		Related:    req.RelatedEntities,
		Source:     req.Source,
		Supersedes: req.Supersedes,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	ref, err := entityRef(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	// an empty body bumps every fact
	var req struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	n, err := s.engine.TouchFacts(r.Context(), ref, req.IDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity": toEntityJSON(ref), "bumped": n})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	mode, err := engine.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats, err := s.engine.RunDecayCycle(r.Context(), mode)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason         string `json:"reason"`
		TranscriptPath string `json:"transcript_path"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "api"
	}

	if !s.engine.CheckpointsEnabled() {
		writeError(w, http.StatusServiceUnavailable, "checkpoints disabled: no llm configured")
		return
	}

	// Async checkpoint: return 202 immediately
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		res, err := s.runCheckpoint(req.Reason, req.TranscriptPath)
		if err != nil {
			logger.Errorw("checkpoint: failed", "reason", req.Reason, "error", err)
			return
		}
		logger.Infow("checkpoint: finished", "reason", req.Reason, "status", res.Status, "id", res.ID)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "checkpointing", "reason": req.Reason})
}

func (s *Server) runCheckpoint(reason, transcriptPath string) (*engine.CheckpointResult, error) {
	if transcriptPath == "" {
		return s.engine.Checkpoint(s.ctx, reason)
	}
	msgs, err := transcript.ParseJSONL(transcriptPath)
	if err != nil {
		return nil, err
	}
	return s.engine.CheckpointMessages(s.ctx, reason, msgs, transcript.SourceTranscript)
}
