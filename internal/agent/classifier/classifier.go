// Package classifier maps user messages to one of the fixed intent labels.
package classifier

import (
	"context"
	"strings"

	"github.com/support-agent/server/internal/agent/model"
	"github.com/support-agent/server/internal/agent/prompts"
	logx "github.com/support-agent/server/pkg/logger"
)

const (
	defaultHistoryWindow = 4
	defaultCharBudget    = 100
)

// IntentClassifier asks the completion provider for a label and fails closed
// to out_of_scope on any provider error or unrecognized output. The literal
// [FAQ] and [Agente] markers short-circuit without a provider call.
type IntentClassifier struct {
	completer     model.Completer
	historyWindow int
	charBudget    int
}

func New(completer model.Completer, cfg model.ConversationConfig) *IntentClassifier {
	window := cfg.Classifier.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	budget := cfg.Classifier.CharBudget
	if budget <= 0 {
		budget = defaultCharBudget
	}
	return &IntentClassifier{completer: completer, historyWindow: window, charBudget: budget}
}

func (c *IntentClassifier) Classify(ctx context.Context, history []model.Message, message string) model.Intent {
	switch strings.ToLower(strings.TrimSpace(message)) {
	case "[faq]":
		return model.IntentFAQRequest
	case "[agente]":
		return model.IntentAgentRequest
	}

	prompt := prompts.RenderIntent(c.formatHistory(history), message)

	out, err := c.completer.Complete(ctx, "", prompt)
	if err != nil {
		logx.Error().Err(err).Msg("intent classification failed")
		return model.IntentOutOfScope
	}

	label := strings.ToLower(strings.TrimSpace(out))
	if !model.ValidIntent(label) {
		logx.Warn().Str("label", label).Msg("classifier returned unknown label")
		return model.IntentOutOfScope
	}
	return model.Intent(label)
}

// formatHistory renders the most recent prior messages as "role: text" lines,
// each truncated to the character budget to bound prompt size.
func (c *IntentClassifier) formatHistory(history []model.Message) string {
	if len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "Usuario"
		if msg.Role == model.RoleAssistant {
			role = "Asistente"
		}
		text := msg.Text
		if r := []rune(text); len(r) > c.charBudget {
			text = string(r[:c.charBudget]) + "..."
		}
		lines = append(lines, role+": "+text)
	}
	return strings.Join(lines, "\n")
}

var _ model.Classifier = (*IntentClassifier)(nil)
