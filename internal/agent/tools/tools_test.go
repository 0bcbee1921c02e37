package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/server/internal/agent/model"
)

type stubRetriever struct {
	chunks []model.Chunk
	err    error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query, collection string, k int) ([]model.Chunk, error) {
	return s.chunks, s.err
}

func TestKnowledgeSearchFormatsChunks(t *testing.T) {
	search := NewKnowledgeSearch(&stubRetriever{chunks: []model.Chunk{
		{Content: "Los reembolsos tardan 5 días.", Source: "refunds.md"},
		{Content: "El soporte atiende 24/7.", Source: "hours.md"},
	}}, "faq_knowledge", 3)

	out := search.Search(context.Background(), "reembolso")

	require.Contains(t, out, "[Fuente 1: refunds.md]")
	require.Contains(t, out, "[Fuente 2: hours.md]")
	assert.Contains(t, out, "Los reembolsos tardan 5 días.")
	assert.Contains(t, out, "\n\n---\n\n")
}

func TestKnowledgeSearchUnknownSource(t *testing.T) {
	search := NewKnowledgeSearch(&stubRetriever{chunks: []model.Chunk{
		{Content: "algo"},
	}}, "faq_knowledge", 3)

	out := search.Search(context.Background(), "x")
	assert.Contains(t, out, "[Fuente 1: Unknown]")
}

func TestKnowledgeSearchNoResults(t *testing.T) {
	search := NewKnowledgeSearch(&stubRetriever{}, "faq_knowledge", 3)
	out := search.Search(context.Background(), "nada")
	assert.Equal(t, NoInfoSentinel, out)
}

func TestKnowledgeSearchRetrieverError(t *testing.T) {
	search := NewKnowledgeSearch(&stubRetriever{err: errors.New("boom")}, "faq_knowledge", 3)
	out := search.Search(context.Background(), "x")
	assert.Equal(t, SearchError, out)
}

func TestValidateEmail(t *testing.T) {
	cases := []struct {
		input string
		valid bool
		email string
	}{
		{"user@example.com", true, "user@example.com"},
		{"  user@example.com  ", true, "user@example.com"},
		{"USER.NAME+tag@Example.CO", true, "USER.NAME+tag@Example.CO"},
		{"user@sub.domain.org", true, "user@sub.domain.org"},
		{"not-an-email", false, ""},
		{"user@", false, ""},
		{"@example.com", false, ""},
		{"user@example", false, ""},
		{"user@example.c", false, ""},
		{"user name@example.com", false, ""},
		{"", false, ""},
	}

	for _, tc := range cases {
		got := ValidateEmail(tc.input)
		assert.Equal(t, tc.valid, got.Valid, "input %q", tc.input)
		assert.Equal(t, tc.email, got.Email, "input %q", tc.input)
	}
}

func TestValidateEmailIsPure(t *testing.T) {
	first := ValidateEmail("user@example.com")
	second := ValidateEmail("user@example.com")
	assert.Equal(t, first, second)
}

func TestHandoffAvailableAgent(t *testing.T) {
	h := NewHandoffWithAvailability(func() bool { return true })
	msg := h.Initiate("user@example.com", "abc12345-rest")

	assert.Contains(t, msg, "Transferencia exitosa")
	assert.Contains(t, msg, "user@example.com")
	assert.Contains(t, msg, "#ABC12345")
}

func TestHandoffBusyAgents(t *testing.T) {
	h := NewHandoffWithAvailability(func() bool { return false })
	msg := h.Initiate("user@example.com", "abc12345-rest")

	assert.Contains(t, msg, "agentes están ocupados")
	assert.Contains(t, msg, "2-4 horas")
	assert.Contains(t, msg, "#ABC12345")
}

func TestTicketRef(t *testing.T) {
	assert.Equal(t, "#SESSION_", TicketRef("session_9f8e7d6c"))
	assert.Equal(t, "#AB", TicketRef("ab"))
	assert.Equal(t, "#", TicketRef(""))
}

func TestRedirectToFAQ(t *testing.T) {
	out := RedirectToFAQ()
	assert.True(t, strings.Contains(out, "página de FAQ"))
	assert.Contains(t, out, "[Agente]")
}
