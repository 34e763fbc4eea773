// Package chat runs one user exchange: a model call, at most one tool call,
// and a follow-up model call that turns the tool's answer into prose.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	appLog "calmate/internal/log"
	"calmate/internal/model"
	"calmate/internal/session"
	"calmate/internal/tools"
)

// Apology is shown to the user whenever an exchange fails.
const Apology = "Sorry, something went wrong."

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("chat: empty message")

// Generator produces the model's next reply for a transcript. system is
// sent as the instruction and is not part of turns.
type Generator interface {
	Generate(ctx context.Context, system string, turns []model.Turn) (model.Reply, error)
}

// Chat ties a session to a model. Not safe for concurrent use.
type Chat struct {
	session *session.Session
	gen     Generator
}

func New(s *session.Session, gen Generator) *Chat {
	return &Chat{session: s, gen: gen}
}

// Session returns the session the chat operates on.
func (c *Chat) Session() *session.Session { return c.session }

// Send delivers text to the model and returns the model's answer. Model and
// persistence failures are logged and answered with Apology; the returned
// error is non-nil only for blank input.
func (c *Chat) Send(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	turnID := uuid.NewString()

	c.session.Refresh()
	c.session.AddUserMessage(text)
	appLog.Debug("chat: user message", "turn_id", turnID, "chars", len(text))

	reply, err := c.generate(ctx)
	if err != nil {
		appLog.Error("chat: model call failed", err, "turn_id", turnID)
		return Apology, nil
	}
	texts := reply.Texts

	if len(reply.Calls) > 0 {
		follow, err := c.runTool(ctx, turnID, reply.Calls)
		if err != nil {
			appLog.Error("chat: tool round failed", err, "turn_id", turnID)
			return Apology, nil
		}
		texts = append(texts, follow.Texts...)
	}

	answer := strings.Join(texts, "")
	if answer != "" {
		c.session.AddModelText(answer)
	}
	appLog.Debug("chat: model answered", "turn_id", turnID, "chars", len(answer))
	return answer, nil
}

// runTool dispatches the first call and asks the model for a follow-up.
// Any further calls, including those in the follow-up, are ignored.
// When the first call names an unknown tool nothing is dispatched, even if a
// later call is known, and no follow-up is made.
func (c *Chat) runTool(ctx context.Context, turnID string, calls []model.FunctionCall) (model.Reply, error) {
	if len(calls) > 1 {
		appLog.Warn("chat: ignoring extra function calls", "turn_id", turnID, "ignored", len(calls)-1)
	}
	fc := calls[0]
	if !tools.Known(fc.Name) {
		appLog.Warn("chat: model called unknown tool", "turn_id", turnID, "name", fc.Name)
		return model.Reply{}, nil
	}

	c.session.AddFunctionCall(fc)
	result, err := c.session.HandleFunctionCall(fc)
	if err != nil {
		return model.Reply{}, err
	}
	appLog.Info("chat: tool call", "turn_id", turnID, "name", fc.Name, "result", result)

	follow, err := c.generate(ctx)
	if err != nil {
		return model.Reply{}, err
	}
	if len(follow.Calls) > 0 {
		appLog.Warn("chat: ignoring function calls in follow-up", "turn_id", turnID, "count", len(follow.Calls))
	}
	return follow, nil
}

func (c *Chat) generate(ctx context.Context) (model.Reply, error) {
	return c.gen.Generate(ctx, c.session.Context(), c.session.Transcript())
}
