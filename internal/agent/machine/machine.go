// Package machine implements the turn router: an explicit finite-state
// machine that, once per inbound message, selects exactly one behavior node,
// executes it, applies its state mutations and persists the checkpoint.
package machine

import (
	"context"
	"errors"
	"fmt"

	"github.com/support-agent/server/internal/agent/model"
	"github.com/support-agent/server/internal/agent/tools"
	logx "github.com/support-agent/server/pkg/logger"
)

// State is a node of the turn state machine.
type State string

const (
	StateClassifying   State = "classifying"
	StateGreeting      State = "greeting"
	StateFaqRedirect   State = "faq_redirect"
	StateSupportQuery  State = "support_query"
	StateRequestEmail  State = "request_email"
	StateValidateEmail State = "validate_email"
	StateOutOfScope    State = "out_of_scope"
	StateEnded         State = "ended"
)

// ErrSessionEnded is returned for any turn submitted after the conversation
// reached its terminal state. The caller must start a new session.
var ErrSessionEnded = errors.New("conversation already ended")

// Engine executes turns against the conversation state machine. It owns the
// session state exclusively for the duration of a turn; sessions are
// independent and may run concurrently.
type Engine struct {
	classifier  model.Classifier
	completer   model.Completer
	search      *tools.KnowledgeSearch
	handoff     *tools.Handoff
	checkpoints model.CheckpointStore
	history     model.HistoryStore
}

// NewEngine wires the engine. A missing dependency is a startup
// misconfiguration and prevents serving any turns. The history store is
// optional; logging is skipped when nil.
func NewEngine(
	classifier model.Classifier,
	completer model.Completer,
	search *tools.KnowledgeSearch,
	handoff *tools.Handoff,
	checkpoints model.CheckpointStore,
	history model.HistoryStore,
) (*Engine, error) {
	if classifier == nil {
		return nil, fmt.Errorf("classifier is nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is nil")
	}
	if search == nil || handoff == nil {
		return nil, fmt.Errorf("tools are not properly initialized")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	return &Engine{
		classifier:  classifier,
		completer:   completer,
		search:      search,
		handoff:     handoff,
		checkpoints: checkpoints,
		history:     history,
	}, nil
}

// ProcessTurn runs one full turn for the session and returns the assistant
// reply with routing metadata.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, message string) (*model.TurnResult, error) {
	return e.run(ctx, sessionID, message, nil)
}

// ProcessTurnStream behaves like ProcessTurn but emits response text
// incrementally through onChunk while the behavior node executes. The
// returned TurnResult carries the same metadata as the non-streaming call.
func (e *Engine) ProcessTurnStream(ctx context.Context, sessionID, message string, onChunk func(string) error) (*model.TurnResult, error) {
	return e.run(ctx, sessionID, message, onChunk)
}

func (e *Engine) run(ctx context.Context, sessionID, message string, onChunk func(string) error) (*model.TurnResult, error) {
	conv, err := e.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if conv == nil {
		conv = model.NewConversation(sessionID)
	}
	if conv.Ended {
		return nil, ErrSessionEnded
	}

	prior := conv.Messages
	conv.Append(model.RoleHuman, message)

	// Entry: a pending email sub-flow bypasses classification entirely so
	// intent drift cannot break out of it.
	state := StateClassifying
	if conv.AwaitingEmail {
		state = StateValidateEmail
	} else {
		intent := e.classifier.Classify(ctx, prior, message)
		conv.CurrentIntent = intent
		state = routeIntent(intent)
		logx.Debug().
			Str("session_id", sessionID).
			Str("intent", string(intent)).
			Str("state", string(state)).
			Msg("intent classified")
	}

	res := e.execute(ctx, state, conv, message, onChunk)

	reply := res.reply
	if res.failure == failureCompletion {
		reply = renderFailure(res.failure)
	}

	conv.Append(model.RoleAssistant, reply)
	conv.AwaitingEmail = res.awaitEmail
	if res.email != "" {
		conv.UserEmail = res.email
	}
	if res.ended {
		conv.Ended = true
	}
	conv.RAGContext = res.ragContext

	// No partial commit: the turn only counts once the checkpoint is durable.
	if err := e.checkpoints.Save(ctx, sessionID, conv); err != nil {
		return nil, fmt.Errorf("save checkpoint: %w", err)
	}

	e.logHistory(ctx, conv, message, reply)

	if onChunk != nil && !res.streamed {
		if err := onChunk(reply); err != nil {
			return nil, fmt.Errorf("stream consumer: %w", err)
		}
	}

	return &model.TurnResult{
		Response:       reply,
		SessionID:      sessionID,
		Intent:         conv.CurrentIntent,
		Ended:          conv.Ended,
		EmailCollected: conv.UserEmail != "",
	}, nil
}

// routeIntent maps a classified intent to a behavior state. Anything outside
// the known set fails closed to out-of-scope.
func routeIntent(intent model.Intent) State {
	switch intent {
	case model.IntentGreeting:
		return StateGreeting
	case model.IntentFAQRequest:
		return StateFaqRedirect
	case model.IntentAgentRequest:
		return StateRequestEmail
	case model.IntentSupportQuery:
		return StateSupportQuery
	default:
		return StateOutOfScope
	}
}

// execute runs exactly one behavior node for the turn.
func (e *Engine) execute(ctx context.Context, state State, conv *model.Conversation, message string, onChunk func(string) error) nodeResult {
	switch state {
	case StateGreeting:
		return e.runGreeting()
	case StateFaqRedirect:
		return e.runFAQRedirect()
	case StateSupportQuery:
		return e.runSupportQuery(ctx, message, onChunk)
	case StateRequestEmail:
		return e.runRequestEmail()
	case StateValidateEmail:
		return e.runValidateEmail(conv, message)
	default:
		return e.runOutOfScope()
	}
}

// logHistory appends the turn transcript to the audit log. Best effort only;
// the checkpoint is already durable at this point.
func (e *Engine) logHistory(ctx context.Context, conv *model.Conversation, message, reply string) {
	if e.history == nil {
		return
	}
	if err := e.history.Append(ctx, conv.SessionID, model.RoleHuman, message, conv.CurrentIntent); err != nil {
		logx.Error().Err(err).Str("session_id", conv.SessionID).Msg("failed to log user message")
	}
	if err := e.history.Append(ctx, conv.SessionID, model.RoleAssistant, reply, conv.CurrentIntent); err != nil {
		logx.Error().Err(err).Str("session_id", conv.SessionID).Msg("failed to log assistant message")
	}
}
