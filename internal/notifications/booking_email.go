package notifications

import (
	"bytes"
	"html/template"
	"time"

	"clinic-backend/internal/models"
)

const bookingReceivedTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hi {{.PatientName}},</p>
  <p>We received your booking request. It will be confirmed once payment is complete.</p>
  <ul>
    <li>Doctor: Dr {{.DoctorName}}</li>
    <li>Date: {{.Date}}</li>
    <li>Time: {{.Time}}</li>
    <li>Duration: {{.DurationMinutes}} minutes</li>
    <li>Consultation: {{.TypeLabel}}</li>
    <li>Booking reference: {{.AppointmentID}}</li>
  </ul>
  <p>Thank you.</p>
</body>
</html>`

const appointmentConfirmedTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Hi {{.PatientName}},</p>
  <p>Your appointment is confirmed. Here are the details:</p>
  <ul>
    <li>Doctor: Dr {{.DoctorName}}</li>
    <li>Date: {{.Date}}</li>
    <li>Time: {{.Time}}</li>
    <li>Duration: {{.DurationMinutes}} minutes</li>
    <li>Consultation: {{.TypeLabel}}</li>
    <li>Booking reference: {{.AppointmentID}}</li>
  </ul>
  <p>You will receive a video consultation link before your appointment starts.</p>
  <p>Thank you.</p>
</body>
</html>`

var (
	bookingReceivedTmpl      = template.Must(template.New("booking_received").Parse(bookingReceivedTemplate))
	appointmentConfirmedTmpl = template.Must(template.New("appointment_confirmed").Parse(appointmentConfirmedTemplate))
)

type bookingEmailData struct {
	PatientName     string
	DoctorName      string
	Date            string
	Time            string
	DurationMinutes int
	TypeLabel       string
	AppointmentID   string
}

func buildBookingReceivedHTML(appointment models.Appointment, patient, doctor models.User, loc *time.Location) (string, error) {
	return renderBookingEmail(bookingReceivedTmpl, appointment, patient, doctor, loc)
}

func buildAppointmentConfirmedHTML(appointment models.Appointment, patient, doctor models.User, loc *time.Location) (string, error) {
	return renderBookingEmail(appointmentConfirmedTmpl, appointment, patient, doctor, loc)
}

func renderBookingEmail(tmpl *template.Template, appointment models.Appointment, patient, doctor models.User, loc *time.Location) (string, error) {
	local := appointment.ScheduledAt.In(loc)
	data := bookingEmailData{
		PatientName:     patient.FirstName + " " + patient.LastName,
		DoctorName:      doctor.FirstName + " " + doctor.LastName,
		Date:            local.Format("Monday 2 January 2006"),
		Time:            local.Format("15:04"),
		DurationMinutes: appointment.Duration,
		TypeLabel:       consultationTypeLabel(appointment.ConsultationType),
		AppointmentID:   appointment.ID,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func consultationTypeLabel(value string) string {
	switch value {
	case models.ConsultationInitial:
		return "Initial consultation"
	case models.ConsultationFollowUp:
		return "Follow-up consultation"
	default:
		return value
	}
}
