package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/dochost/internal/models"
)

const emailBody = `# Build {{if .Build.Success}}passed{{else}}failed{{end}}: {{.Project.Name}}

The build of **{{.Project.Name}}** version **{{.Version}}** {{if .Build.Success}}passed{{else}}failed{{end}}.

- Project: {{.Project.Name}}
- Version: {{.Version}}
- Build: [#{{.Build.ID}}]({{.BuildURL}})
{{- if .Build.Commit}}
- Commit: {{.Build.ShortCommit}}
{{- end}}
{{if .Build.Error}}
Error:

~~~
{{.Build.Error}}
~~~
{{end}}
Build details: {{.BuildURL}}

---

You are receiving this email because you are subscribed to build
notifications for {{.Project.Name}}. Manage your subscriptions at
{{.UnsubscribeURL}}
`

var emailTemplate = template.Must(template.New("email").Option("missingkey=error").Parse(emailBody))

type emailData struct {
	Project        *models.Project
	Version        string
	Build          *models.Build
	BuildURL       string
	UnsubscribeURL string
}

// EmailSubject returns the subject line for a build notification.
func EmailSubject(project *models.Project, version *models.Version, build *models.Build) string {
	status := "Failed"
	if build.Success {
		status = "Passed"
	}
	ref := version.DisplayName()
	if build.Commit != "" {
		ref = build.ShortCommit()
	}
	return fmt.Sprintf("%s: %s (%s)", status, project.Name, ref)
}

func composeEmail(cfg Config, project *models.Project, version *models.Version, build *models.Build, recipients []string) (Message, error) {
	data := emailData{
		Project:        project,
		Version:        version.DisplayName(),
		Build:          build,
		BuildURL:       BuildURL(cfg.ProductionDomain, project, build),
		UnsubscribeURL: UnsubscribeURL(cfg.ProductionDomain, project),
	}

	var text bytes.Buffer
	if err := emailTemplate.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render email body: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert(text.Bytes(), &html); err != nil {
		return Message{}, fmt.Errorf("render email html: %w", err)
	}

	to := make([]string, len(recipients))
	copy(to, recipients)

	return Message{
		ID:      uuid.NewString(),
		From:    cfg.FromAddress,
		To:      to,
		Subject: EmailSubject(project, version, build),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
