package notify

import (
	"fmt"
	"strings"
	"time"
)

// AppointmentDetails is the information rendered into a confirmation email.
type AppointmentDetails struct {
	CustomerName  string
	CustomerEmail string
	ItemName      string
	ScheduledAt   time.Time
	Notes         string
}

// AppointmentConfirmationEmail renders a Spanish confirmation email. The time is
// formatted in ScheduledAt's own location.
func AppointmentConfirmationEmail(d AppointmentDetails) EmailMessage {
	name := strings.TrimSpace(d.CustomerName)
	if name == "" {
		name = "cliente"
	}
	when := d.ScheduledAt.Format("02/01/2006 15:04")

	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", name)
	fmt.Fprintf(&b, "Tu cita quedó confirmada para el %s.\n", when)
	if d.ItemName != "" {
		fmt.Fprintf(&b, "Moto de interés: %s\n", d.ItemName)
	}
	if d.Notes != "" {
		fmt.Fprintf(&b, "Notas: %s\n", d.Notes)
	}
	b.WriteString("\nTe esperamos de lunes a viernes, de 11:00 a 18:00.\n")

	return EmailMessage{
		To:       d.CustomerEmail,
		ToName:   d.CustomerName,
		Subject:  "Confirmación de cita " + when,
		Text:     b.String(),
		Category: CategoryAppointment,
	}
}
