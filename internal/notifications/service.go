package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Teams cards list at most this many lines per section; email carries everything
const teamsSectionLimit = 10

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
	send   func(m *gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// SendRunReport sends the digest of a platform run. Runs that changed nothing and raised
// nothing are not reported.
func (s *Service) SendRunReport(result *models.RunResult) error {
	if result == nil {
		return nil
	}
	if !result.Diff.HasSignals() && len(result.Conflicts) == 0 {
		logrus.WithField("platform", result.Platform).Debug("Nothing to report")
		return nil
	}
	return s.deliver(BuildRunDigest(result), runThemeColor(result))
}

// SendDeadlineAlert sends overdue and approaching reviews found by a deadline check
func (s *Service) SendDeadlineAlert(alert *models.DeadlineAlert) error {
	if alert == nil || alert.Empty() {
		return nil
	}
	color := "ffb900"
	if len(alert.Overdue) > 0 {
		color = "d13438"
	}
	return s.deliver(BuildDeadlineDigest(alert), color)
}

func (s *Service) deliver(digest *Digest, themeColor string) error {
	var errors []string

	// Send to Teams if configured
	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(s.buildTeamsMessage(digest, themeColor)); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent digest to Teams")
		}
	}

	// Send via email if configured
	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(digest); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent digest via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func runThemeColor(result *models.RunResult) string {
	switch {
	case len(result.Diff.OverdueReviews) > 0:
		return "d13438"
	case len(result.Conflicts) > 0 || len(result.Diff.ApproachingDeadlines) > 0:
		return "ffb900"
	default:
		return "0078d4"
	}
}

func (s *Service) sendToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(digest *Digest, themeColor string) *TeamsMessage {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: themeColor,
		Title:      digest.Title,
		Text:       digest.Summary,
	}

	if len(digest.Facts) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle:    "Summary",
			ActivitySubtitle: digest.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
			Facts:            digest.Facts,
			Markdown:         true,
		})
	}

	for _, section := range digest.Sections {
		lines := section.Lines
		more := 0
		if len(lines) > teamsSectionLimit {
			more = len(lines) - teamsSectionLimit
			lines = lines[:teamsSectionLimit]
		}
		text := "- " + strings.Join(lines, "\n- ")
		if more > 0 {
			text += fmt.Sprintf("\n\n_and %d more_", more)
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: fmt.Sprintf("%s (%d)", section.Title, len(section.Lines)),
			ActivityText:  text,
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(digest *Digest) error {
	htmlBody, err := buildEmailHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	// Create message
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", digest.Subject)
	m.SetBody("text/plain", digest.Text())
	m.AddAlternative("text/html", htmlBody)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0078d4; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .section { border-left: 4px solid #0078d4; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .section h2 { margin-top: 0; font-size: 1.1em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <p>Generated on {{.GeneratedAt.UTC.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <p>{{.Summary}}</p>
        {{range .Facts}}
            <p><strong>{{.Name}}:</strong> {{.Value}}</p>
        {{end}}
    </div>

    {{range .Sections}}
    <div class="section">
        <h2>{{.Title}}</h2>
        <ul>
        {{range .Lines}}
            <li>{{.}}</li>
        {{end}}
        </ul>
    </div>
    {{end}}

    <hr>
    <p><small>This report was generated automatically by the Referee Monitor.</small></p>
</body>
</html>
`))

func buildEmailHTML(digest *Digest) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, digest); err != nil {
		return "", err
	}
	return buf.String(), nil
}
