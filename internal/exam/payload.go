package exam

import (
	"encoding/json"
	"errors"

	"langexam/internal/models"
)

var ErrUnknownExamType = errors.New("unknown exam type")

// Question is one gradable item. Answer is the key: a string, a []string for
// multi-blank gap fills, or a bool.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Answer  any      `json:"answer,omitempty"`
}

type ReadingTask struct {
	ContentID string     `json:"content_id"`
	Passage   string     `json:"passage"`
	Questions []Question `json:"questions"`
}

type ListeningTask struct {
	ContentID  string     `json:"content_id"`
	AudioURL   string     `json:"audio_url"`
	Transcript string     `json:"transcript,omitempty"`
	Questions  []Question `json:"questions"`
}

type WritingTask struct {
	ContentID string `json:"content_id"`
	Prompt    string `json:"prompt"`
	MinWords  int    `json:"min_words"`
}

type SpeakingPrompt struct {
	ContentID string `json:"content_id"`
	Question  string `json:"question"`
}

// SpeakingTask draws one prompt from each of the three mandatory parts.
type SpeakingTask struct {
	Part1 SpeakingPrompt `json:"part1"`
	Part2 SpeakingPrompt `json:"part2"`
	Part3 SpeakingPrompt `json:"part3"`
}

// Payload is the session payload: a tagged union keyed by exam type, exactly
// one task pointer set, plus whatever the submission added.
type Payload struct {
	Reading   *ReadingTask      `json:"reading,omitempty"`
	Listening *ListeningTask    `json:"listening,omitempty"`
	Writing   *WritingTask      `json:"writing,omitempty"`
	Speaking  *SpeakingTask     `json:"speaking,omitempty"`
	Answers   map[string]any    `json:"answers,omitempty"`
	Responses map[string]string `json:"responses,omitempty"`
	Results   map[string]bool   `json:"results,omitempty"`
	Feedback  string            `json:"feedback,omitempty"`
}

// Content body shapes as stored in content_items.body.
type ReadingBody struct {
	Passage   string     `json:"passage"`
	Questions []Question `json:"questions"`
}

type ListeningBody struct {
	AudioURL   string     `json:"audio_url"`
	Transcript string     `json:"transcript,omitempty"`
	Questions  []Question `json:"questions"`
}

type WritingBody struct {
	Prompt   string `json:"prompt"`
	MinWords int    `json:"min_words"`
}

type SpeakingBody struct {
	Question string `json:"question"`
}

// DurationMinutes is the allotted time per exam type.
func DurationMinutes(examType string) int {
	switch examType {
	case models.ExamReading:
		return 60
	case models.ExamListening:
		return 30
	case models.ExamWriting:
		return 60
	case models.ExamSpeaking:
		return 14
	}
	return 0
}

func IsValidType(examType string) bool {
	switch examType {
	case models.ExamReading, models.ExamListening, models.ExamWriting, models.ExamSpeaking:
		return true
	}
	return false
}

// IsObjective reports whether the type is auto-graded from answer keys.
func IsObjective(examType string) bool {
	return examType == models.ExamReading || examType == models.ExamListening
}

// Questions returns the gradable questions of an objective payload.
func (p Payload) Questions() []Question {
	switch {
	case p.Reading != nil:
		return p.Reading.Questions
	case p.Listening != nil:
		return p.Listening.Questions
	}
	return nil
}

// Sanitized returns a caller-facing copy with every answer key stripped.
func (p Payload) Sanitized() Payload {
	out := p
	if p.Reading != nil {
		task := *p.Reading
		task.Questions = stripAnswers(task.Questions)
		out.Reading = &task
	}
	if p.Listening != nil {
		task := *p.Listening
		task.Questions = stripAnswers(task.Questions)
		out.Listening = &task
	}
	return out
}

func stripAnswers(questions []Question) []Question {
	stripped := make([]Question, len(questions))
	for i, q := range questions {
		q.Answer = nil
		stripped[i] = q
	}
	return stripped
}

func ParsePayload(raw json.RawMessage) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, err
	}
	return payload, nil
}
