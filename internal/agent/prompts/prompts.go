// Package prompts centralizes every template the agent emits or sends to the
// completion provider.
package prompts

import (
	_ "embed"
	"strings"
)

//go:embed template/intent_prompt.txt
var intentPrompt string

//go:embed template/support_prompt.txt
var supportPrompt string

const Greeting = `¡Hola! Soy tu asistente de soporte. Puedo ayudarte con:

- **[FAQ]** - Ver preguntas frecuentes
- **[Agente]** - Hablar con un agente humano
- O puedes hacerme preguntas directas sobre nuestros productos y servicios

¿En qué puedo ayudarte hoy?`

const OutOfScope = `Lo siento, solo puedo ayudarte con temas relacionados con soporte técnico y nuestros servicios.

Para otras consultas, puedes:
- Escribir **[FAQ]** para ver preguntas frecuentes
- Escribir **[Agente]** para hablar con una persona

¿Hay algo sobre nuestros servicios en lo que pueda ayudarte?`

const EmailRequest = "Para conectarte con un agente, por favor proporciona tu correo electrónico:"

const EmailValidationError = `El correo proporcionado no parece válido.
Por favor, verifica el formato (ejemplo: nombre@dominio.com) e intenta nuevamente.`

// NoContextFallback is returned when retrieval yields nothing usable; no
// model call is made so the agent cannot hallucinate an answer.
const NoContextFallback = "No encontré información específica sobre tu consulta en nuestra " +
	"base de conocimiento. Te sugiero:\n\n" +
	"• Escribir **[FAQ]** para ver todas las preguntas frecuentes\n" +
	"• Escribir **[Agente]** para hablar con un especialista"

// SupportFailure is the degraded reply when answer generation fails.
const SupportFailure = "Disculpa, tuve un problema al procesar tu consulta. " +
	"Por favor, intenta nuevamente o escribe **[Agente]** para ayuda personalizada."

const NoHistory = "Sin historial previo"

// RenderIntent fills the intent-classification prompt. Known tokens only, so
// braces inside the template body stay untouched.
func RenderIntent(history, message string) string {
	if history == "" {
		history = NoHistory
	}
	return strings.NewReplacer(
		"{history}", history,
		"{message}", message,
	).Replace(intentPrompt)
}

// RenderSupport fills the grounding prompt for a support query.
func RenderSupport(context, question string) string {
	return strings.NewReplacer(
		"{context}", context,
		"{question}", question,
	).Replace(supportPrompt)
}
