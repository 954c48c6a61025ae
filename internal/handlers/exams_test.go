package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"langexam/internal/auth"
	"langexam/internal/exam"
	"langexam/internal/models"
	"langexam/internal/services"

	"github.com/shopspring/decimal"
)

func routedRequest(t *testing.T, handler *Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken("secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func TestStartExamSuccess(t *testing.T) {
	handler := newTestHandler(testDeps{
		exams: stubExamService{
			startFn: func(ctx context.Context, userID, examType string) (services.StartResult, error) {
				if userID != "user-1" || examType != models.ExamReading {
					t.Fatalf("unexpected args: %s %s", userID, examType)
				}
				return services.StartResult{
					SessionID:       "sess-1",
					ExamType:        examType,
					DurationMinutes: 60,
					CreditsLeft:     4,
				}, nil
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/exams/start", bytes.NewBufferString(`{"exam_type":"READING"}`))
	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["session_id"] != "sess-1" || resp["credits_left"] != float64(4) {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestStartExamInsufficientCredits(t *testing.T) {
	handler := newTestHandler(testDeps{
		exams: stubExamService{
			startFn: func(ctx context.Context, userID, examType string) (services.StartResult, error) {
				return services.StartResult{}, services.ErrInsufficientFunds
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/exams/start", bytes.NewBufferString(`{"exam_type":"WRITING"}`))
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestStartExamNoContent(t *testing.T) {
	handler := newTestHandler(testDeps{
		exams: stubExamService{
			startFn: func(ctx context.Context, userID, examType string) (services.StartResult, error) {
				return services.StartResult{}, services.ErrContentUnavailable
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/exams/start", bytes.NewBufferString(`{"exam_type":"SPEAKING"}`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestStartExamRejectsUnknownType(t *testing.T) {
	handler := newTestHandler(testDeps{})
	rr := routedRequest(t, handler, http.MethodPost, "/exams/start", bytes.NewBufferString(`{"exam_type":"TELEPATHY"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestSubmitExamFormatsScore(t *testing.T) {
	handler := newTestHandler(testDeps{
		exams: stubExamService{
			submitFn: func(ctx context.Context, userID, sessionID string, req services.SubmitRequest) (services.SubmitResult, error) {
				if sessionID != "sess-1" {
					t.Fatalf("unexpected session id: %s", sessionID)
				}
				if req.Answers["q1"] != "paris" {
					t.Fatalf("answers not passed through: %v", req.Answers)
				}
				return services.SubmitResult{
					SessionID: sessionID,
					Score:     decimal.RequireFromString("7.5"),
					Breakdown: []services.QuestionResult{{QuestionID: "q1", Correct: true}},
				}, nil
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/exams/sess-1/submit", bytes.NewBufferString(`{"answers":{"q1":"paris"}}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["score"] != "7.5" {
		t.Fatalf("unexpected score: %v", resp["score"])
	}
}

func TestSubmitExamDoubleSubmit(t *testing.T) {
	handler := newTestHandler(testDeps{
		exams: stubExamService{
			submitFn: func(ctx context.Context, userID, sessionID string, req services.SubmitRequest) (services.SubmitResult, error) {
				return services.SubmitResult{}, services.ErrAlreadySubmitted
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodPost, "/exams/sess-1/submit", bytes.NewBufferString(`{"answers":{}}`))
	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestGetExamForbidden(t *testing.T) {
	handler := newTestHandler(testDeps{
		exams: stubExamService{
			getFn: func(ctx context.Context, userID, sessionID string) (models.ExamSession, exam.Payload, error) {
				return models.ExamSession{}, exam.Payload{}, services.ErrForbidden
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodGet, "/exams/sess-2", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
}

func TestListExamsReturnsHistory(t *testing.T) {
	score := "8.0"
	handler := newTestHandler(testDeps{
		sessions: stubSessionStore{
			listByUserFn: func(ctx context.Context, userID string, limit, offset int) ([]models.ExamSession, error) {
				return []models.ExamSession{
					{ID: "sess-1", ExamType: models.ExamReading, Status: models.SessionCompleted, Score: &score},
					{ID: "sess-2", ExamType: models.ExamWriting, Status: models.SessionInProgress},
				}, nil
			},
		},
	})
	rr := routedRequest(t, handler, http.MethodGet, "/exams/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var resp []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp) != 2 || resp[0]["score"] != "8.0" {
		t.Fatalf("unexpected history: %v", resp)
	}
}
