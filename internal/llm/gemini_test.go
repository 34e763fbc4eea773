package llm

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"calmate/internal/config"
	"calmate/internal/model"
)

func TestToContents(t *testing.T) {
	args := map[string]any{"date": "2026-10-19"}
	turns := []model.Turn{
		model.TextTurn(model.RoleUser, "what's on monday?"),
		{Role: model.RoleModel, Parts: []model.Part{{FunctionCall: &model.FunctionCall{ID: "c1", Name: "list_events", Args: args}}}},
		{Role: model.RoleUser, Parts: []model.Part{{FunctionResponse: &model.FunctionResponse{ID: "c1", Name: "list_events", Result: "No events scheduled on 2026-10-19."}}}},
		model.TextTurn(model.RoleModel, "Nothing yet."),
	}

	got := ToContents(turns)

	want := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: "what's on monday?"}}},
		{Role: "model", Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "list_events", Args: args}}}},
		{Role: "user", Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
			ID:       "c1",
			Name:     "list_events",
			Response: map[string]any{"result": "No events scheduled on 2026-10-19."},
		}}}},
		{Role: "model", Parts: []*genai.Part{{Text: "Nothing yet."}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
}

func TestFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: "model", Parts: []*genai.Part{
			{Text: "planning...", Thought: true},
			{Text: "Sure, "},
			{FunctionCall: &genai.FunctionCall{Name: "get_current_date"}},
			{Text: "one moment."},
		}},
	}}}

	got, err := FromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sure, ", "one moment."}, got.Texts)
	assert.Equal(t, []model.FunctionCall{{Name: "get_current_date"}}, got.Calls)
}

func TestFromResponse_Empty(t *testing.T) {
	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
	} {
		_, err := FromResponse(resp)
		assert.ErrorIs(t, err, ErrEmptyResponse)
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewGemini(context.Background(), config.GeminiConfig{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNewGemini_DefaultModel(t *testing.T) {
	g, err := NewGemini(context.Background(), config.GeminiConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultModel, g.Model())
	require.Len(t, g.tools, 1)
	assert.Len(t, g.tools[0].FunctionDeclarations, 6)
}
