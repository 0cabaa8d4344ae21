package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prodsense/product-sensing-bot/internal/config"
	"github.com/prodsense/product-sensing-bot/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via the configured channels
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// WebhookMessage is the JSON payload posted to the configured webhook
type WebhookMessage struct {
	Title string        `json:"title"`
	Text  string        `json:"text"`
	Facts []WebhookFact `json:"facts,omitempty"`
}

type WebhookFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendReport sends an ingestion run report via all configured channels
func (s *Service) SendReport(report *models.Report) error {
	var errors []string

	if s.config.WebhookURL != "" {
		if err := s.sendToWebhook(s.buildWebhookMessage(report)); err != nil {
			logrus.Errorf("Failed to send webhook notification: %v", err)
			errors = append(errors, fmt.Sprintf("webhook: %v", err))
		} else {
			logrus.Info("Successfully sent report to webhook")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("email: %v", err))
		} else {
			logrus.Info("Successfully sent report via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// SendAlert sends an urgent notification about a failed or degraded run
func (s *Service) SendAlert(alert *models.Alert) error {
	var errors []string
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Type), alert.Title)

	if s.config.WebhookURL != "" {
		message := &WebhookMessage{
			Title: subject,
			Text:  alert.Message,
			Facts: []WebhookFact{
				{Name: "Alert ID", Value: alert.ID},
				{Name: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
			},
		}
		if err := s.sendToWebhook(message); err != nil {
			logrus.Errorf("Failed to send webhook alert: %v", err)
			errors = append(errors, fmt.Sprintf("webhook: %v", err))
		}
	}

	if s.config.NotificationEmail != "" {
		m := gomail.NewMessage()
		m.SetHeader("From", s.config.SMTPUsername)
		m.SetHeader("To", s.config.NotificationEmail)
		m.SetHeader("Subject", subject)
		m.SetBody("text/plain", fmt.Sprintf("%s\n\nRaised: %s\nAlert ID: %s\n",
			alert.Message, alert.CreatedAt.Format("2006-01-02 15:04:05 UTC"), alert.ID))

		d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
		if err := d.DialAndSend(m); err != nil {
			logrus.Errorf("Failed to send email alert: %v", err)
			errors = append(errors, fmt.Sprintf("email: %v", err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("alert errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToWebhook(message *WebhookMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.WebhookURL)

	if err != nil {
		return fmt.Errorf("failed to post webhook message: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildWebhookMessage(report *models.Report) *WebhookMessage {
	message := &WebhookMessage{
		Title: fmt.Sprintf("Product Sensing Report - %s", titleCase(report.Period)),
		Text: fmt.Sprintf("Ingested %d comments across %d channels for %s",
			report.Outcome.CommentsIngested, report.Outcome.ChannelsProcessed,
			strings.Join(report.Products, ", ")),
		Facts: []WebhookFact{
			{Name: "Run ID", Value: report.RunID},
			{Name: "Generated", Value: report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")},
			{Name: "Comments Ingested", Value: fmt.Sprintf("%d", report.Outcome.CommentsIngested)},
			{Name: "Comments Failed", Value: fmt.Sprintf("%d", report.Outcome.CommentsFailed)},
			{Name: "Channels Processed", Value: fmt.Sprintf("%d", report.Outcome.ChannelsProcessed)},
			{Name: "Analysis Progress", Value: fmt.Sprintf("%d of %d", report.Progress.AnalyzedComments, report.Progress.TotalComments)},
		},
	}

	if len(report.Errors) > 0 {
		message.Facts = append(message.Facts, WebhookFact{
			Name:  "Errors",
			Value: fmt.Sprintf("%d", len(report.Errors)),
		})
	}

	return message
}

func (s *Service) sendEmail(report *models.Report) error {
	subject := fmt.Sprintf("Product Sensing Report - %s (%d comments)",
		titleCase(report.Period), report.Outcome.CommentsIngested)

	htmlBody, err := s.buildEmailHTML(report)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	textBody := s.buildEmailText(report)

	// Create message
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	// Send email
	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildEmailHTML(report *models.Report) (string, error) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Product Sensing Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #1a7f5a; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .errors { border-left: 4px solid #d13438; padding: 10px; margin: 10px 0; background-color: #fafafa; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Product Sensing Report</h1>
        <p>{{title .Period}} run generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Products:</strong> {{join .Products ", "}}</p>
        <p><strong>Comments Ingested:</strong> {{.Outcome.CommentsIngested}}</p>
        <p><strong>Comments Failed:</strong> {{.Outcome.CommentsFailed}}</p>
        <p><strong>Channels Processed:</strong> {{.Outcome.ChannelsProcessed}}</p>
        <p><strong>Analysis Progress:</strong> {{.Progress.AnalyzedComments}} of {{.Progress.TotalComments}} comments analyzed</p>
    </div>

    {{if .Errors}}
    <div class="errors">
        <h2>Errors</h2>
        {{range .Errors}}<p>{{.}}</p>{{end}}
    </div>
    {{end}}

    <hr>
    <p><small>Run {{.RunID}}. This report was generated automatically by the product sensing bot.</small></p>
</body>
</html>
`

	// Create template with custom functions
	t := template.New("email").Funcs(template.FuncMap{
		"title": titleCase,
		"join":  strings.Join,
	})

	t, err := t.Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *Service) buildEmailText(report *models.Report) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Product Sensing Report - %s\n", titleCase(report.Period)))
	text.WriteString(fmt.Sprintf("Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(fmt.Sprintf("Run: %s\n\n", report.RunID))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Products: %s\n", strings.Join(report.Products, ", ")))
	text.WriteString(fmt.Sprintf("Comments Ingested: %d\n", report.Outcome.CommentsIngested))
	text.WriteString(fmt.Sprintf("Comments Failed: %d\n", report.Outcome.CommentsFailed))
	text.WriteString(fmt.Sprintf("Channels Processed: %d\n", report.Outcome.ChannelsProcessed))
	text.WriteString(fmt.Sprintf("Analysis Progress: %d of %d comments analyzed\n",
		report.Progress.AnalyzedComments, report.Progress.TotalComments))

	if len(report.Errors) > 0 {
		text.WriteString("\nERRORS\n")
		text.WriteString("======\n")
		for _, e := range report.Errors {
			text.WriteString(fmt.Sprintf("- %s\n", e))
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the product sensing bot.\n")

	return text.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
