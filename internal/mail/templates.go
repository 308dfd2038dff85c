package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const (
	SubjectApplicationReceived = "Application Received"
	subjectNewLeadFmt          = "New Lead: %s"
)

var (
	prospectTmpl = template.Must(template.New("prospect").Parse(
		`<p>Hi {{.FirstName}}, thanks for applying!</p>`))

	adminTmpl = template.Must(template.New("admin").Parse(`<h3>New Lead</h3>
<p>Name: {{.FirstName}} {{.LastName}}</p>
<p>Email: {{.Email}}</p>
<p>ID: {{.LeadID}}</p>
<p>Submitted: {{.CreatedAt}}</p>`))
)

// LeadSummary is the data rendered into notification emails.
type LeadSummary struct {
	LeadID    string
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
}

// ProspectEmail renders the confirmation sent to the applicant.
func ProspectEmail(summary LeadSummary) (subject, body string, err error) {
	body, err = render(prospectTmpl, summary)
	return SubjectApplicationReceived, body, err
}

// AdminEmail renders the notice sent to the admin address.
func AdminEmail(summary LeadSummary) (subject, body string, err error) {
	data := struct {
		LeadSummary
		CreatedAt string
	}{LeadSummary: summary, CreatedAt: summary.CreatedAt.UTC().Format(time.RFC3339)}
	body, err = render(adminTmpl, data)
	return fmt.Sprintf(subjectNewLeadFmt, summary.FirstName), body, err
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
