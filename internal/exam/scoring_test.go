package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandForScoreTable(t *testing.T) {
	cases := []struct {
		correct int
		total   int
		band    string
	}{
		{4, 4, "9.0"},
		{3, 4, "7.5"}, // 75% floors to the 70 decile
		{9, 10, "8.5"},
		{5, 10, "6.5"},
		{1, 10, "4.5"},
		{0, 4, "4.0"},
		{0, 0, "4.0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.band, BandForScore(tc.correct, tc.total).String(),
			"%d/%d", tc.correct, tc.total)
	}
}

func TestAnswerMatchesStrings(t *testing.T) {
	assert.True(t, AnswerMatches("Paris", "  paris "))
	assert.True(t, AnswerMatches("true", "TRUE "))
	assert.False(t, AnswerMatches("paris", "london"))
	assert.False(t, AnswerMatches("paris", 42))
}

func TestAnswerMatchesSets(t *testing.T) {
	correct := []any{"paris", "france"}
	assert.True(t, AnswerMatches(correct, []any{"France", "Paris"}))
	assert.False(t, AnswerMatches(correct, []any{"paris"}), "cardinality must match")
	assert.False(t, AnswerMatches(correct, []any{"paris", "paris"}), "duplicates do not cover distinct keys")
	assert.False(t, AnswerMatches(correct, []any{"paris", "spain"}))
	assert.False(t, AnswerMatches(correct, "paris"))
}

func TestAnswerMatchesBooleans(t *testing.T) {
	assert.True(t, AnswerMatches(true, true))
	assert.True(t, AnswerMatches(true, "true"))
	assert.True(t, AnswerMatches(false, "false"))
	assert.False(t, AnswerMatches(true, "True"), "only the lowercase string form is accepted")
	assert.False(t, AnswerMatches(true, 1))
}

func TestAnswerMatchesUnknownShape(t *testing.T) {
	assert.False(t, AnswerMatches(3.14, 3.14))
	assert.False(t, AnswerMatches(nil, "anything"))
	assert.False(t, AnswerMatches([]any{"a", 2}, []any{"a", "2"}))
}

func TestFallbackWritingBand(t *testing.T) {
	assert.Equal(t, "4.0", FallbackWritingBand("too short").String())
	long := ""
	for i := 0; i < 260; i++ {
		long += "word "
	}
	assert.Equal(t, "6.0", FallbackWritingBand(long).String())
}

func TestFallbackSpeakingBand(t *testing.T) {
	assert.Equal(t, "4.0", FallbackSpeakingBand(nil).String())
	responses := map[string]string{
		"part1": "a fairly detailed answer that keeps going for a while and says things",
		"part2": "another answer of a similar moderate length with some substance here",
		"part3": "a third answer in the same register to keep the mean consistent ok",
	}
	assert.Equal(t, "5.0", FallbackSpeakingBand(responses).String())
}

func TestSanitizedStripsAnswerKeys(t *testing.T) {
	payload := Payload{
		Reading: &ReadingTask{
			ContentID: "content-1",
			Passage:   "text",
			Questions: []Question{
				{ID: "q1", Prompt: "capital of France?", Answer: "paris"},
			},
		},
	}
	clean := payload.Sanitized()
	assert.Nil(t, clean.Reading.Questions[0].Answer)
	// original untouched
	assert.Equal(t, "paris", payload.Reading.Questions[0].Answer)
}
