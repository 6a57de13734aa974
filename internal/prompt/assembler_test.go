package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildOrdersBlocks(t *testing.T) {
	got := Build(Input{
		Base:              "BASE",
		Rules:             "RULES",
		SurveyDescription: "a film survey",
		SurveyContext:     true,
		Question:          "What did you think of the ending?",
		QuestionIntent:    "learn how the ending landed",
		QuestionContext:   true,
		Language:          "French",
	})

	want := "BASE\n\nRULES" +
		"\n\nSurvey Description: a film survey" +
		"\n\nOriginal Question: What did you think of the ending?" +
		"\n\nQuestion Intended Purpose: learn how the ending landed" +
		"\n\nPlease ask questions in French language."
	assert.Equal(t, want, got)
}

func TestBuildOmitsGatedBlocks(t *testing.T) {
	got := Build(Input{
		Base:              "BASE",
		Rules:             "RULES",
		SurveyDescription: "ignored",
		SurveyContext:     false,
		Question:          "Q?",
		QuestionIntent:    "ignored too",
		QuestionContext:   false,
		Language:          "English",
	})
	assert.Equal(t, "BASE\n\nRULES\n\nOriginal Question: Q?", got)
}

func TestBuildTreatsMissingOptionalTextAsAbsent(t *testing.T) {
	got := Build(Input{
		Base:            "BASE",
		Rules:           "RULES",
		SurveyContext:   true,
		Question:        "Q?",
		QuestionContext: true,
	})
	assert.Equal(t, "BASE\n\nRULES\n\nOriginal Question: Q?", got)
	assert.NotContains(t, got, "Please ask questions in")
}

func TestBuildIntentComesAfterQuestion(t *testing.T) {
	got := Build(Input{Base: "B", Rules: "R", Question: "Q?", QuestionIntent: "I", QuestionContext: true})
	assert.Less(t, strings.Index(got, "Original Question"), strings.Index(got, "Question Intended Purpose"))
}

func TestRedirection(t *testing.T) {
	assert.Equal(t,
		"The user's response was irrelevant to the original question. Please politely acknowledge their response but firmly rephrase the original question to redirect them back to the topic: Q?",
		Redirection("", "Q?"))
	assert.Equal(t, "Go back to: Q?", Redirection("Go back to: %s", "Q?"))
	assert.Equal(t, "Go back. Q?", Redirection("Go back.", "Q?"))
	assert.Equal(t, "Stay 100% on topic: Q? (%d)", Redirection("Stay 100% on topic: %s (%d)", "Q?"))
}
