package machine

import (
	"context"

	"github.com/support-agent/server/internal/agent/model"
	"github.com/support-agent/server/internal/agent/prompts"
	"github.com/support-agent/server/internal/agent/tools"
	logx "github.com/support-agent/server/pkg/logger"
)

// failureKind classifies how a behavior node degraded. Failures never cross
// the node boundary as errors; the engine maps them to templated replies.
type failureKind int

const (
	failureNone failureKind = iota
	failureCompletion
)

// nodeResult is the explicit outcome of one behavior node: the reply (or a
// failure kind standing in for it) plus the state mutations to apply.
type nodeResult struct {
	reply      string
	failure    failureKind
	awaitEmail bool
	email      string
	ended      bool
	ragContext string
	streamed   bool
}

func renderFailure(f failureKind) string {
	switch f {
	case failureCompletion:
		return prompts.SupportFailure
	default:
		return prompts.OutOfScope
	}
}

func (e *Engine) runGreeting() nodeResult {
	return nodeResult{reply: prompts.Greeting}
}

func (e *Engine) runFAQRedirect() nodeResult {
	return nodeResult{reply: tools.RedirectToFAQ()}
}

func (e *Engine) runOutOfScope() nodeResult {
	return nodeResult{reply: prompts.OutOfScope}
}

func (e *Engine) runRequestEmail() nodeResult {
	return nodeResult{reply: prompts.EmailRequest, awaitEmail: true}
}

// runSupportQuery retrieves grounding context and generates an answer from
// it. With no usable context the fixed fallback is returned without a model
// call, so the agent cannot invent an answer.
func (e *Engine) runSupportQuery(ctx context.Context, query string, onChunk func(string) error) nodeResult {
	contextStr := e.search.Search(ctx, query)

	if contextStr == tools.NoInfoSentinel || contextStr == tools.SearchError {
		return nodeResult{reply: prompts.NoContextFallback, ragContext: contextStr}
	}

	prompt := prompts.RenderSupport(contextStr, query)

	var reply string
	var err error
	if onChunk != nil {
		reply, err = e.completer.CompleteStream(ctx, "", prompt, onChunk)
	} else {
		reply, err = e.completer.Complete(ctx, "", prompt)
	}
	if err != nil {
		logx.Error().Err(err).Msg("support query generation failed")
		return nodeResult{failure: failureCompletion, ragContext: contextStr}
	}

	return nodeResult{reply: reply, ragContext: contextStr, streamed: onChunk != nil}
}

// runValidateEmail interprets the inbound message as an email attempt. A
// valid address triggers the handoff and ends the conversation; anything else
// re-prompts and keeps the sub-flow pending.
func (e *Engine) runValidateEmail(conv *model.Conversation, input string) nodeResult {
	v := tools.ValidateEmail(input)
	if !v.Valid {
		return nodeResult{reply: prompts.EmailValidationError, awaitEmail: true}
	}

	confirmation := e.handoff.Initiate(v.Email, conv.SessionID)
	return nodeResult{reply: confirmation, email: v.Email, ended: true}
}
