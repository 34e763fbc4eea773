// Package llm adapts the hosted Gemini API to the provider-neutral
// transcript types used by the chat loop.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"calmate/internal/config"
	appLog "calmate/internal/log"
	"calmate/internal/model"
	"calmate/internal/tools"
)

// ErrNoAPIKey is returned when neither the config nor the environment
// provides a Gemini API key.
var ErrNoAPIKey = errors.New("llm: gemini api key is not set")

// ErrEmptyResponse is returned when the API answers without any candidate.
var ErrEmptyResponse = errors.New("llm: empty response")

// Gemini generates replies with the tool catalog attached.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	tools   []*genai.Tool
}

// NewGemini creates a client for cfg. An empty API key falls back to
// GEMINI_API_KEY.
func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, ErrNoAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = config.DefaultModel
	}
	appLog.Debug("llm: gemini client ready", "model", name, "timeout", cfg.RequestTimeout)

	return &Gemini{
		client:  client,
		model:   name,
		timeout: cfg.RequestTimeout,
		tools:   []*genai.Tool{{FunctionDeclarations: tools.Declarations()}},
	}, nil
}

// Model returns the model name requests are sent to.
func (g *Gemini) Model() string { return g.model }

// Generate sends system as the instruction and turns as the history.
func (g *Gemini) Generate(ctx context.Context, system string, turns []model.Turn) (model.Reply, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{Tools: g.tools}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, ToContents(turns), cfg)
	if err != nil {
		return model.Reply{}, fmt.Errorf("llm: generate content: %w", err)
	}
	appLog.Debug("llm: generate content", "model", g.model, "turns", len(turns), "elapsed", time.Since(start))

	return FromResponse(resp)
}

// ToContents converts transcript turns into API contents.
func ToContents(turns []model.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		c := &genai.Content{Role: roleName(t.Role)}
		for _, p := range t.Parts {
			switch {
			case p.FunctionCall != nil:
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   p.FunctionCall.ID,
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				}})
			case p.FunctionResponse != nil:
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.FunctionResponse.ID,
					Name:     p.FunctionResponse.Name,
					Response: map[string]any{"result": p.FunctionResponse.Result},
				}})
			default:
				c.Parts = append(c.Parts, &genai.Part{Text: p.Text})
			}
		}
		out = append(out, c)
	}
	return out
}

func roleName(r model.Role) string {
	if r == model.RoleModel {
		return string(genai.RoleModel)
	}
	return string(genai.RoleUser)
}

// FromResponse extracts text fragments and function calls from the first
// candidate. Thought parts are dropped.
func FromResponse(resp *genai.GenerateContentResponse) (model.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.Reply{}, ErrEmptyResponse
	}

	var reply model.Reply
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		if p.Text != "" {
			reply.Texts = append(reply.Texts, p.Text)
		}
		if p.FunctionCall != nil {
			reply.Calls = append(reply.Calls, model.FunctionCall{
				ID:   p.FunctionCall.ID,
				Name: p.FunctionCall.Name,
				Args: p.FunctionCall.Args,
			})
		}
	}
	return reply, nil
}
