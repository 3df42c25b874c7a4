package reminders

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"go.uber.org/zap"
)

const (
	reminderSubject    = "📝 Daily Diary Reminder"
	defaultGreetName   = "there"
	defaultAppURL      = "http://localhost:5173"
	reminderHTMLLayout = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #6366f1;">Don't Break Your Streak! ✨</h2>
  <p>Hi {{.Name}},</p>
  <p>You haven't written in your diary today. Keep your streak alive!</p>
  <p>Take a moment to reflect on your day and jot down your thoughts.</p>
  <a href="{{.AppURL}}" style="display: inline-block; background-color: #6366f1; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 16px;">Write Now</a>
  <p style="margin-top: 24px; color: #666; font-size: 14px;">This is an automated reminder from Daily Diary.</p>
</div>`
	reminderTextLayout = `Hi {{.Name}},

You haven't written in your diary today. Keep your streak alive!
Take a moment to reflect on your day and jot down your thoughts: {{.AppURL}}

This is an automated reminder from Daily Diary.
`
)

var (
	reminderHTML = htmltemplate.Must(htmltemplate.New("reminder.html").Parse(reminderHTMLLayout))
	reminderText = texttemplate.Must(texttemplate.New("reminder.txt").Parse(reminderTextLayout))
)

// Rendered is a reminder email ready for a transport.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type templateData struct {
	Name   string
	AppURL string
}

// Render produces the reminder email for the recipient.
func Render(reminder Reminder, appURL string) (Rendered, error) {
	data := templateData{
		Name:   strings.TrimSpace(reminder.DisplayName),
		AppURL: strings.TrimSpace(appURL),
	}
	if data.Name == "" {
		data.Name = defaultGreetName
	}
	if data.AppURL == "" {
		data.AppURL = defaultAppURL
	}

	var html bytes.Buffer
	if err := reminderHTML.Execute(&html, data); err != nil {
		return Rendered{}, err
	}
	var text bytes.Buffer
	if err := reminderText.Execute(&text, data); err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: reminderSubject, HTML: html.String(), Text: text.String()}, nil
}

// LogSender records reminders in the log instead of delivering them. It stands in
// for a transport when no mail provider is configured.
type LogSender struct {
	Logger *zap.Logger
	AppURL string
}

// Send logs the rendered reminder.
func (s LogSender) Send(_ context.Context, reminder Reminder) error {
	rendered, err := Render(reminder, s.AppURL)
	if err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("reminder email (log transport)",
		zap.String("address", reminder.Address),
		zap.String("subject", rendered.Subject),
		zap.String("body", rendered.Text))
	return nil
}
