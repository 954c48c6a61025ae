package handlers

import (
	"net/http"

	"langexam/internal/middleware"
	"langexam/internal/services"

	"github.com/go-chi/chi/v5"
)

type startExamRequest struct {
	ExamType string `json:"exam_type" validate:"required,oneof=READING LISTENING WRITING SPEAKING"`
}

func (h *Handler) StartExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startExamRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.exams.StartExam(r.Context(), userID, req.ExamType)
	if err != nil {
		respondServiceError(w, err, "unable to start exam")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id":       result.SessionID,
		"exam_type":        result.ExamType,
		"duration_minutes": result.DurationMinutes,
		"payload":          result.Payload,
		"credits_left":     result.CreditsLeft,
	})
}

type submitExamRequest struct {
	Answers   map[string]any    `json:"answers"`
	Responses map[string]string `json:"responses"`
}

func (h *Handler) SubmitExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := chi.URLParam(r, "id")
	var req submitExamRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.exams.SubmitExam(r.Context(), userID, sessionID, services.SubmitRequest{
		Answers:   req.Answers,
		Responses: req.Responses,
	})
	if err != nil {
		respondServiceError(w, err, "unable to submit exam")
		return
	}
	subScores := map[string]string{}
	for name, score := range result.SubScores {
		subScores[name] = score.StringFixed(1)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": result.SessionID,
		"score":      result.Score.StringFixed(1),
		"sub_scores": subScores,
		"breakdown":  result.Breakdown,
		"feedback":   result.Feedback,
	})
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	session, payload, err := h.exams.GetSession(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "unable to load exam")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id":   session.ID,
		"exam_type":    session.ExamType,
		"status":       session.Status,
		"payload":      payload,
		"score":        session.Score,
		"sub_scores":   session.SubScores,
		"created_at":   session.CreatedAt,
		"completed_at": session.CompletedAt,
	})
}

func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := paginate(r)
	sessions, err := h.sessions.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load exam history")
		return
	}
	normalized := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		normalized = append(normalized, map[string]any{
			"session_id":   session.ID,
			"exam_type":    session.ExamType,
			"status":       session.Status,
			"score":        session.Score,
			"created_at":   session.CreatedAt,
			"completed_at": session.CompletedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}
