package render

import (
	"strings"
	"time"

	"vercelgram/internal/vercel"
)

// NotAvailable stands in for optional fields the event did not carry.
const NotAvailable = "N/A"

// Deployment is the flattened view of a deployment-status event.
type Deployment struct {
	Status        string // created, succeeded, failed
	Project       string
	URL           string
	ID            string
	CommitAuthor  string
	CommitMessage string
	CommitSHA     string
	CreatedAt     time.Time
	Environment   string
}

// FromEvent extracts the rendered fields from a recognized event.
func FromEvent(ev vercel.Event) (Deployment, error) {
	p, err := ev.Deployment()
	if err != nil {
		return Deployment{}, err
	}
	ts, err := ev.Timestamp()
	if err != nil {
		return Deployment{}, err
	}

	d := Deployment{
		Status:        ev.Status(),
		Project:       p.Name,
		URL:           p.URL,
		ID:            p.Deployment.ID,
		CommitAuthor:  NotAvailable,
		CommitMessage: NotAvailable,
		CommitSHA:     NotAvailable,
		CreatedAt:     ts,
		Environment:   orNA(p.Target),
	}
	if m := p.Deployment.Meta; m != nil {
		d.CommitAuthor = orNA(m.GithubCommitAuthorName)
		d.CommitMessage = orNA(m.GithubCommitMessage)
		d.CommitSHA = orNA(m.GithubCommitSha)
	}
	return d, nil
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

// Text renders d as a Markdown message body.
func (d Deployment) Text() string {
	var b strings.Builder
	b.WriteString("📢 Vercel Deployment Update (")
	b.WriteString(EscapeMarkdown(strings.ToUpper(d.Status)))
	b.WriteString(")\n\n")

	line(&b, "Project", d.Project)
	line(&b, "Deployment URL", d.URL)
	line(&b, "Deployment ID", d.ID)
	line(&b, "Commit Author", d.CommitAuthor)
	line(&b, "Commit Message", d.CommitMessage)
	line(&b, "Commit SHA", d.CommitSHA)
	line(&b, "Timestamp (UTC)", vercel.FormatTimestamp(d.CreatedAt))
	line(&b, "Environment", d.Environment)
	return b.String()
}

func line(b *strings.Builder, label, value string) {
	b.WriteString("*")
	b.WriteString(label)
	b.WriteString(":* ")
	b.WriteString(EscapeMarkdown(value))
	b.WriteString("\n")
}
