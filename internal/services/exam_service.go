package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"

	"langexam/internal/db"
	"langexam/internal/exam"
	"langexam/internal/grading"
	"langexam/internal/models"
	"langexam/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type UserStore interface {
	AdjustCredits(ctx context.Context, tx store.Tx, userID string, delta int64) (int64, error)
	AdjustCreditsUnchecked(ctx context.Context, tx store.Tx, userID string, delta int64) (int64, error)
	GetCredits(ctx context.Context, userID string) (int64, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx store.Execer, input store.LedgerEntryInput) error
	FindByExternalRef(ctx context.Context, ref, kind string) (models.LedgerEntry, error)
	GetByID(ctx context.Context, entryID string) (models.LedgerEntry, error)
	AnnotateReason(ctx context.Context, tx store.Execer, entryID, note string) error
}

type SessionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.SessionInput) error
	GetByID(ctx context.Context, sessionID string) (models.ExamSession, error)
	Complete(ctx context.Context, tx store.Execer, input store.CompletionInput) (bool, error)
}

type ContentStore interface {
	ListPublished(ctx context.Context, examType string, part int) ([]models.ContentItem, error)
}

type BalanceHub interface {
	BroadcastBalance(userID string, credits int64)
}

type ExamService struct {
	txRunner db.TxRunner
	users    UserStore
	ledger   LedgerStore
	sessions SessionStore
	content  ContentStore
	grader   grading.Client
	hub      BalanceHub
	logger   *zap.Logger
	pickFn   func(n int) int
}

func NewExamService(txRunner db.TxRunner, users UserStore, ledger LedgerStore, sessions SessionStore, content ContentStore, grader grading.Client, hub BalanceHub, logger *zap.Logger) *ExamService {
	return &ExamService{
		txRunner: txRunner,
		users:    users,
		ledger:   ledger,
		sessions: sessions,
		content:  content,
		grader:   grader,
		hub:      hub,
		logger:   logger,
		pickFn:   rand.Intn,
	}
}

type StartResult struct {
	SessionID       string
	ExamType        string
	DurationMinutes int
	Payload         exam.Payload
	CreditsLeft     int64
}

// StartExam deducts one credit, selects published content uniformly at random
// and opens an IN_PROGRESS session. When no content is published for the type
// the deduction is compensated with a USAGE_FAIL entry so the two entries net
// to zero.
func (s *ExamService) StartExam(ctx context.Context, userID, examType string) (StartResult, error) {
	if !exam.IsValidType(examType) {
		return StartResult{}, ErrInvalidExamType
	}

	var creditsLeft int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		balance, err := s.users.AdjustCredits(ctx, tx, userID, -1)
		if err != nil {
			if errors.Is(err, store.ErrCreditsExhausted) {
				return ErrInsufficientFunds
			}
			return err
		}
		creditsLeft = balance
		return s.ledger.Append(ctx, tx, store.LedgerEntryInput{
			ID:     uuid.NewString(),
			UserID: userID,
			Amount: -1,
			Kind:   models.KindUsage,
			Reason: "exam started: " + examType,
		})
	})
	if err != nil {
		return StartResult{}, err
	}

	payload, err := s.selectContent(ctx, examType)
	if err != nil {
		if errors.Is(err, ErrContentUnavailable) {
			s.restoreCredit(ctx, userID, examType)
			return StartResult{}, ErrContentUnavailable
		}
		s.restoreCredit(ctx, userID, examType)
		return StartResult{}, err
	}

	sessionID := uuid.NewString()
	data, err := json.Marshal(payload)
	if err != nil {
		return StartResult{}, err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.sessions.Create(ctx, tx, store.SessionInput{
			ID:       sessionID,
			UserID:   userID,
			ExamType: examType,
			Payload:  data,
		})
	})
	if err != nil {
		s.restoreCredit(ctx, userID, examType)
		return StartResult{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastBalance(userID, creditsLeft)
	}
	return StartResult{
		SessionID:       sessionID,
		ExamType:        examType,
		DurationMinutes: exam.DurationMinutes(examType),
		Payload:         payload.Sanitized(),
		CreditsLeft:     creditsLeft,
	}, nil
}

// restoreCredit is the compensation step: it runs outside the start sequence
// and must not fail silently. A failure here means a user paid for nothing,
// which is an operational incident.
func (s *ExamService) restoreCredit(ctx context.Context, userID, examType string) {
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.users.AdjustCreditsUnchecked(ctx, tx, userID, 1); err != nil {
			return err
		}
		return s.ledger.Append(ctx, tx, store.LedgerEntryInput{
			ID:     uuid.NewString(),
			UserID: userID,
			Amount: 1,
			Kind:   models.KindUsageFail,
			Reason: "content unavailable, credit restored: " + examType,
		})
	})
	if err != nil {
		s.logger.Error("credit restore failed, user is missing a credit",
			zap.String("user_id", userID),
			zap.String("exam_type", examType),
			zap.Error(err))
	}
}

func (s *ExamService) selectContent(ctx context.Context, examType string) (exam.Payload, error) {
	if examType == models.ExamSpeaking {
		return s.selectSpeaking(ctx)
	}
	items, err := s.content.ListPublished(ctx, examType, 0)
	if err != nil {
		return exam.Payload{}, err
	}
	if len(items) == 0 {
		return exam.Payload{}, ErrContentUnavailable
	}
	item := items[s.pickFn(len(items))]

	var payload exam.Payload
	switch examType {
	case models.ExamReading:
		var body exam.ReadingBody
		if err := json.Unmarshal(item.Body, &body); err != nil {
			return exam.Payload{}, err
		}
		payload.Reading = &exam.ReadingTask{
			ContentID: item.ID,
			Passage:   body.Passage,
			Questions: body.Questions,
		}
	case models.ExamListening:
		var body exam.ListeningBody
		if err := json.Unmarshal(item.Body, &body); err != nil {
			return exam.Payload{}, err
		}
		payload.Listening = &exam.ListeningTask{
			ContentID:  item.ID,
			AudioURL:   body.AudioURL,
			Transcript: body.Transcript,
			Questions:  body.Questions,
		}
	case models.ExamWriting:
		var body exam.WritingBody
		if err := json.Unmarshal(item.Body, &body); err != nil {
			return exam.Payload{}, err
		}
		payload.Writing = &exam.WritingTask{
			ContentID: item.ID,
			Prompt:    body.Prompt,
			MinWords:  body.MinWords,
		}
	}
	return payload, nil
}

// selectSpeaking draws one question independently from each of the three
// parts. Any empty part fails the whole start.
func (s *ExamService) selectSpeaking(ctx context.Context) (exam.Payload, error) {
	var prompts [3]exam.SpeakingPrompt
	for part := 1; part <= 3; part++ {
		items, err := s.content.ListPublished(ctx, models.ExamSpeaking, part)
		if err != nil {
			return exam.Payload{}, err
		}
		if len(items) == 0 {
			return exam.Payload{}, ErrContentUnavailable
		}
		item := items[s.pickFn(len(items))]
		var body exam.SpeakingBody
		if err := json.Unmarshal(item.Body, &body); err != nil {
			return exam.Payload{}, err
		}
		prompts[part-1] = exam.SpeakingPrompt{ContentID: item.ID, Question: body.Question}
	}
	return exam.Payload{
		Speaking: &exam.SpeakingTask{Part1: prompts[0], Part2: prompts[1], Part3: prompts[2]},
	}, nil
}

type SubmitRequest struct {
	Answers   map[string]any
	Responses map[string]string
}

type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
}

type SubmitResult struct {
	SessionID string
	Score     decimal.Decimal
	SubScores map[string]decimal.Decimal
	Breakdown []QuestionResult
	Feedback  string
}

// SubmitExam grades the submission and completes the session exactly once.
// Objective types are graded in-process against stored answer keys; subjective
// types go to the grading collaborator, with a deterministic heuristic when it
// is unavailable.
func (s *ExamService) SubmitExam(ctx context.Context, userID, sessionID string, req SubmitRequest) (SubmitResult, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SubmitResult{}, ErrSessionNotFound
		}
		return SubmitResult{}, err
	}
	if session.UserID != userID {
		return SubmitResult{}, ErrForbidden
	}
	if session.Status == models.SessionCompleted {
		return SubmitResult{}, ErrAlreadySubmitted
	}
	if session.Status != models.SessionInProgress {
		return SubmitResult{}, ErrInvalidState
	}

	payload, err := exam.ParsePayload(session.Payload)
	if err != nil {
		return SubmitResult{}, err
	}

	if exam.IsObjective(session.ExamType) {
		return s.completeObjective(ctx, session, payload, req.Answers)
	}
	return s.completeSubjective(ctx, session, payload, req.Responses)
}

func (s *ExamService) completeObjective(ctx context.Context, session models.ExamSession, payload exam.Payload, answers map[string]any) (SubmitResult, error) {
	questions := payload.Questions()
	results := make(map[string]bool, len(questions))
	breakdown := make([]QuestionResult, 0, len(questions))
	correct := 0
	for _, q := range questions {
		ok := exam.AnswerMatches(q.Answer, answers[q.ID])
		results[q.ID] = ok
		breakdown = append(breakdown, QuestionResult{QuestionID: q.ID, Correct: ok})
		if ok {
			correct++
		}
	}
	band := exam.BandForScore(correct, len(questions))

	payload.Answers = answers
	payload.Results = results
	if err := s.complete(ctx, session.ID, payload, band, nil, nil); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		SessionID: session.ID,
		Score:     band,
		Breakdown: breakdown,
	}, nil
}

func (s *ExamService) completeSubjective(ctx context.Context, session models.ExamSession, payload exam.Payload, responses map[string]string) (SubmitResult, error) {
	payload.Responses = responses

	task := grading.Task{
		SessionID: session.ID,
		ExamType:  session.ExamType,
		Responses: responses,
	}
	if payload.Writing != nil {
		task.Prompt = payload.Writing.Prompt
	}

	var band decimal.Decimal
	var subScores map[string]decimal.Decimal
	var aiCost *string
	feedback := ""

	// The grading call happens outside any transaction; only the final
	// status/score write is transactional.
	result, err := s.grader.Grade(ctx, task)
	if err != nil {
		s.logger.Warn("grading unavailable, applying fallback score",
			zap.String("session_id", session.ID),
			zap.String("exam_type", session.ExamType),
			zap.Error(err))
		band = s.fallbackBand(session.ExamType, responses)
		feedback = "Automated provisional score; detailed feedback is unavailable for this attempt."
	} else {
		band = result.Band
		subScores = result.SubScores
		feedback = result.Feedback
		cost := result.CostCents.String()
		aiCost = &cost
	}
	payload.Feedback = feedback

	var subScoresJSON *string
	if len(subScores) > 0 {
		data, err := json.Marshal(subScores)
		if err != nil {
			return SubmitResult{}, err
		}
		encoded := string(data)
		subScoresJSON = &encoded
	}

	if err := s.complete(ctx, session.ID, payload, band, subScoresJSON, aiCost); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		SessionID: session.ID,
		Score:     band,
		SubScores: subScores,
		Feedback:  feedback,
	}, nil
}

func (s *ExamService) fallbackBand(examType string, responses map[string]string) decimal.Decimal {
	if examType == models.ExamWriting {
		essay := ""
		for _, response := range responses {
			if len(response) > len(essay) {
				essay = response
			}
		}
		return exam.FallbackWritingBand(essay)
	}
	return exam.FallbackSpeakingBand(responses)
}

func (s *ExamService) complete(ctx context.Context, sessionID string, payload exam.Payload, band decimal.Decimal, subScores, aiCost *string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		completed, err := s.sessions.Complete(ctx, tx, store.CompletionInput{
			SessionID: sessionID,
			Payload:   data,
			Score:     band.StringFixed(1),
			SubScores: subScores,
			AICost:    aiCost,
		})
		if err != nil {
			return err
		}
		if !completed {
			return ErrAlreadySubmitted
		}
		return nil
	})
}

// GetSession returns a caller-facing view of a session the user owns.
func (s *ExamService) GetSession(ctx context.Context, userID, sessionID string) (models.ExamSession, exam.Payload, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ExamSession{}, exam.Payload{}, ErrSessionNotFound
		}
		return models.ExamSession{}, exam.Payload{}, err
	}
	if session.UserID != userID {
		return models.ExamSession{}, exam.Payload{}, ErrForbidden
	}
	payload, err := exam.ParsePayload(session.Payload)
	if err != nil {
		return models.ExamSession{}, exam.Payload{}, err
	}
	if session.Status == models.SessionInProgress {
		// Keys stay hidden until the attempt is over.
		payload = payload.Sanitized()
	}
	return session, payload, nil
}
