package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"langexam/internal/exam"
	"langexam/internal/middleware"
	"langexam/internal/models"
	"langexam/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type contentRequest struct {
	ExamType string          `json:"exam_type" validate:"required,oneof=READING LISTENING WRITING SPEAKING"`
	Part     int             `json:"part" validate:"gte=0,lte=3"`
	Title    string          `json:"title" validate:"required,max=200"`
	Body     json.RawMessage `json:"body" validate:"required"`
}

// validateBody checks the body parses as the shape the exam type expects, so
// broken items cannot reach selection.
func validateBody(examType string, part int, body json.RawMessage) error {
	switch examType {
	case models.ExamReading:
		var parsed exam.ReadingBody
		if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Questions) == 0 {
			return errors.New("reading body needs a passage and questions")
		}
	case models.ExamListening:
		var parsed exam.ListeningBody
		if err := json.Unmarshal(body, &parsed); err != nil || parsed.AudioURL == "" || len(parsed.Questions) == 0 {
			return errors.New("listening body needs an audio url and questions")
		}
	case models.ExamWriting:
		var parsed exam.WritingBody
		if err := json.Unmarshal(body, &parsed); err != nil || parsed.Prompt == "" {
			return errors.New("writing body needs a prompt")
		}
	case models.ExamSpeaking:
		if part < 1 || part > 3 {
			return errors.New("speaking content needs part 1, 2 or 3")
		}
		var parsed exam.SpeakingBody
		if err := json.Unmarshal(body, &parsed); err != nil || parsed.Question == "" {
			return errors.New("speaking body needs a question")
		}
	}
	return nil
}

func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req contentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateBody(req.ExamType, req.Part, req.Body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	contentID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		input := store.ContentInput{
			ID:       contentID,
			ExamType: req.ExamType,
			Part:     req.Part,
			Title:    req.Title,
			Body:     req.Body,
		}
		if err := h.content.Create(r.Context(), tx, input); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"title": req.Title, "exam_type": req.ExamType})
		return h.audit.Log(r.Context(), tx, adminID, "create_content", "content_item", contentID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create content")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": contentID})
}

func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	contentID := chi.URLParam(r, "id")
	var req contentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateBody(req.ExamType, req.Part, req.Body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		input := store.ContentInput{
			ID:       contentID,
			ExamType: req.ExamType,
			Part:     req.Part,
			Title:    req.Title,
			Body:     req.Body,
		}
		if err := h.content.Update(r.Context(), tx, input); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"title": req.Title})
		return h.audit.Log(r.Context(), tx, adminID, "update_content", "content_item", contentID, string(data))
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "content not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": contentID})
}

type publishRequest struct {
	Published bool `json:"published"`
}

func (h *Handler) PublishContent(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	contentID := chi.URLParam(r, "id")
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.content.SetPublished(r.Context(), tx, contentID, req.Published); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]bool{"published": req.Published})
		return h.audit.Log(r.Context(), tx, adminID, "publish_content", "content_item", contentID, string(data))
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "content not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to update content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": contentID, "published": req.Published})
}

func (h *Handler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	contentID := chi.URLParam(r, "id")
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.content.Delete(r.Context(), tx, contentID); err != nil {
			return err
		}
		return h.audit.Log(r.Context(), tx, adminID, "delete_content", "content_item", contentID, "{}")
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "content not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to delete content")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) ListContent(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginate(r)
	examType := r.URL.Query().Get("exam_type")
	if examType != "" && !exam.IsValidType(examType) {
		respondError(w, http.StatusBadRequest, "invalid exam type")
		return
	}
	items, err := h.content.List(r.Context(), examType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load content")
		return
	}
	respondJSON(w, http.StatusOK, items)
}
