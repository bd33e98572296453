package conversation

import (
	"strings"

	"github.com/wolfman30/moto-assistant/internal/catalog"
	"github.com/wolfman30/moto-assistant/internal/correspondents"
	"github.com/wolfman30/moto-assistant/internal/history"
)

const notProvided = "No proporcionado"

const promptIntro = `Eres un asesor de ventas profesional y amigable especializado en motos eléctricas. Tu objetivo es:

1. Saludar al cliente de manera cálida
2. Entender sus necesidades (presupuesto, tipo de uso, preferencias)
3. Recomendar motos eléctricas basadas en su perfil
4. Ayudar a agendar citas (disponibles de lunes a viernes, 11:00 AM a 6:00 PM)
5. Recopilar información de contacto (nombre, teléfono, email)`

const promptInstructions = `INSTRUCCIONES IMPORTANTES:
- Mantén respuestas concisas (máximo 2-3 párrafos) para WhatsApp
- Usa un tono profesional pero amigable
- Si el cliente pregunta sobre una moto específica, proporciona detalles técnicos
- Si quiere agendar cita, confirma disponibilidad (L-V 11-18h)
- Extrae información del cliente gradualmente sin ser invasivo
- Si el cliente está listo para cita, solicita: nombre completo, teléfono de contacto, fecha/hora preferida
- Cuando el cliente te dé un dato (presupuesto, tipo de uso, intereses, email, nombre), usa "gather_info" e incluye "value" con el dato
- Usa los números de "id" de la lista de motos en "motorcycleIds"`

const promptFormat = `RESPONDE EN FORMATO JSON CON ESTA ESTRUCTURA:
{
  "message": "Tu respuesta al cliente",
  "action": "recommend|gather_info|schedule_appointment|provide_info|none",
  "actionData": {
    "key": "value"
  }
}

Ejemplos de actionData:
- Para "recommend": {"motorcycleIds": [1, 2], "reason": "Se adaptan a tu presupuesto"}
- Para "gather_info": {"field": "budget", "question": "¿Cuál es tu presupuesto?", "value": "5000"}
- Para "schedule_appointment": {"preferredDate": "2026-01-25", "preferredTime": "14:00"}
- Para "provide_info": {"topic": "battery_life", "details": "..."}`

// BuildSystemPrompt renders the system instructions from the active catalog
// and the correspondent's known profile.
func BuildSystemPrompt(items []catalog.Item, c *correspondents.Correspondent) string {
	var b strings.Builder
	b.WriteString(promptIntro)

	b.WriteString("\n\nMOTOS DISPONIBLES:\n")
	if len(items) == 0 {
		b.WriteString("- Sin motos disponibles por el momento\n")
	}
	for _, item := range items {
		b.WriteString(catalog.PromptLine(item))
		b.WriteString("\n")
	}

	b.WriteString("\nINFORMACIÓN DEL CLIENTE ACTUAL:\n")
	b.WriteString(profileBlock(c))

	b.WriteString("\n\n")
	b.WriteString(promptInstructions)
	b.WriteString("\n\n")
	b.WriteString(promptFormat)
	return b.String()
}

func profileBlock(c *correspondents.Correspondent) string {
	if !c.HasProfile() {
		return "Cliente nuevo"
	}
	budget := notProvided
	if c.BudgetCents != nil {
		budget = catalog.FormatPrice(*c.BudgetCents)
	}
	lines := []string{
		"- Nombre: " + orNotProvided(c.Name),
		"- Presupuesto: " + budget,
		"- Tipo de uso: " + orNotProvided(c.UsageType),
		"- Intereses: " + orNotProvided(c.Interests),
	}
	return strings.Join(lines, "\n")
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}

// WindowHistory maps stored turns, oldest first, onto chat messages.
// Empty turns are skipped.
func WindowHistory(turns []history.Turn) []ChatMessage {
	out := make([]ChatMessage, 0, len(turns))
	for _, turn := range turns {
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		role := ChatRoleUser
		if turn.Sender == history.SenderAssistant {
			role = ChatRoleAssistant
		}
		out = append(out, ChatMessage{Role: role, Content: turn.Content})
	}
	return out
}
