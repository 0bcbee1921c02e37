// Package tools holds the independent capability units the turn engine
// invokes: knowledge search, email validation, human handoff and the FAQ
// redirect. Each unit depends on at most one external collaborator and never
// lets a collaborator failure escape as an error to the engine.
package tools

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/support-agent/server/internal/agent/model"
	logx "github.com/support-agent/server/pkg/logger"
)

// NoInfoSentinel marks a knowledge search that returned zero chunks.
const NoInfoSentinel = "No se encontró información relevante sobre esta consulta."

// SearchError is the generic degraded result for a failed retrieval call.
const SearchError = "Error al buscar en la base de conocimiento."

const chunkDelimiter = "\n\n---\n\n"

// KnowledgeSearch wraps the retrieval collaborator for a fixed collection.
type KnowledgeSearch struct {
	retriever  model.Retriever
	collection string
	topK       int
}

func NewKnowledgeSearch(retriever model.Retriever, collection string, topK int) *KnowledgeSearch {
	if topK <= 0 {
		topK = 3
	}
	return &KnowledgeSearch{retriever: retriever, collection: collection, topK: topK}
}

// Search returns the top-k chunks formatted as numbered source blocks, the
// no-info sentinel when nothing matches, or a generic error string when the
// retrieval collaborator fails.
func (s *KnowledgeSearch) Search(ctx context.Context, query string) string {
	chunks, err := s.retriever.Retrieve(ctx, query, s.collection, s.topK)
	if err != nil {
		logx.Error().Err(err).Str("query", query).Msg("faq search failed")
		return SearchError
	}
	if len(chunks) == 0 {
		return NoInfoSentinel
	}

	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		source := c.Source
		if source == "" {
			source = "Unknown"
		}
		parts = append(parts, fmt.Sprintf("[Fuente %d: %s]\n%s", i+1, source, strings.TrimSpace(c.Content)))
	}
	return strings.Join(parts, chunkDelimiter)
}

var emailPattern = regexp.MustCompile(`(?i)^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// EmailValidation is the outcome of a structural email check.
type EmailValidation struct {
	Valid   bool
	Email   string
	Message string
}

// ValidateEmail applies the fixed structural pattern to the trimmed input.
// Pure function, no side effects.
func ValidateEmail(input string) EmailValidation {
	trimmed := strings.TrimSpace(input)
	if emailPattern.MatchString(trimmed) {
		return EmailValidation{Valid: true, Email: trimmed, Message: "Email válido"}
	}
	return EmailValidation{Valid: false, Message: "Formato de email inválido"}
}

// Handoff initiates the transfer of a conversation to a human agent. In
// production the availability probe talks to the agent desk; by default it is
// simulated.
type Handoff struct {
	availability func() bool
}

func NewHandoff() *Handoff {
	return &Handoff{availability: func() bool { return rand.Intn(2) == 0 }}
}

// NewHandoffWithAvailability injects a deterministic availability probe.
func NewHandoffWithAvailability(probe func() bool) *Handoff {
	return &Handoff{availability: probe}
}

// Initiate registers the handoff and returns the confirmation message for the
// user, embedding a ticket reference derived from the session id prefix.
func (h *Handoff) Initiate(email, sessionID string) string {
	available := h.availability()
	ticket := TicketRef(sessionID)

	logx.Info().
		Str("email", email).
		Str("session_id", sessionID).
		Bool("available", available).
		Msg("agent handoff initiated")

	if available {
		return fmt.Sprintf(
			"✅ **Transferencia exitosa**\n\n"+
				"Un agente se pondrá en contacto contigo en breve a: %s\n"+
				"Tu número de ticket es: %s\n\n"+
				"¡Gracias por contactarnos!",
			email, ticket,
		)
	}
	return fmt.Sprintf(
		"⏳ **Todos nuestros agentes están ocupados**\n\n"+
			"Hemos registrado tu solicitud y te contactaremos a: %s\n"+
			"Tu número de ticket es: %s\n"+
			"Tiempo estimado de respuesta: 2-4 horas\n\n"+
			"¡Gracias por tu paciencia!",
		email, ticket,
	)
}

// TicketRef derives the ticket reference from the first 8 characters of the
// session id, upper-cased.
func TicketRef(sessionID string) string {
	prefix := sessionID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "#" + strings.ToUpper(prefix)
}

// RedirectToFAQ returns the static message pointing at the FAQ page and the
// agent-handoff keyword.
func RedirectToFAQ() string {
	return "📋 Puedes encontrar respuestas a las preguntas más comunes en nuestra " +
		"[página de FAQ](https://support.example.com/faq).\n\n" +
		"Si no encuentras lo que buscas, escribe **[Agente]** para hablar con una persona."
}
