package reminders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v3"
	"go.uber.org/zap"
)

const (
	defaultSendTimeout = 10 * time.Second
	defaultAPIVersion  = "/v3"
)

// mailgun-go refuses API bases whose path does not name an API version.
var apiVersionSuffix = regexp.MustCompile(`/v[2-4]$`)

var (
	// ErrInvalidMailgunConfig indicates a Mailgun sender without domain, key or sender address.
	ErrInvalidMailgunConfig = errors.New("reminders: invalid mailgun config")
	errMissingAddress       = errors.New("reminders: recipient address is required")
)

// MailgunConfig configures the Mailgun transport.
type MailgunConfig struct {
	Domain      string
	APIKey      string
	APIBase     string
	Sender      string
	AppURL      string
	SendTimeout time.Duration
	Logger      *zap.Logger
}

type mailgunClient interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, message *mailgun.Message) (string, string, error)
}

// MailgunSender delivers reminders through the Mailgun HTTP API.
type MailgunSender struct {
	client      mailgunClient
	sender      string
	appURL      string
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewMailgunSender validates the configuration and builds a sender.
func NewMailgunSender(cfg MailgunConfig) (*MailgunSender, error) {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		return nil, fmt.Errorf("%w: domain required", ErrInvalidMailgunConfig)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidMailgunConfig)
	}
	sender := strings.TrimSpace(cfg.Sender)
	if sender == "" {
		return nil, fmt.Errorf("%w: sender required", ErrInvalidMailgunConfig)
	}

	apiBase, err := NormalizeAPIBase(cfg.APIBase)
	if err != nil {
		return nil, err
	}

	client := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		client.SetAPIBase(apiBase)
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MailgunSender{
		client:      client,
		sender:      sender,
		appURL:      cfg.AppURL,
		sendTimeout: timeout,
		logger:      logger,
	}, nil
}

// Send renders and submits one reminder email.
func (s *MailgunSender) Send(ctx context.Context, reminder Reminder) error {
	address := strings.TrimSpace(reminder.Address)
	if address == "" {
		return errMissingAddress
	}
	rendered, err := Render(reminder, s.appURL)
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}

	message := s.client.NewMessage(s.sender, rendered.Subject, rendered.Text, address)
	message.SetHtml(rendered.HTML)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	_, messageID, err := s.client.Send(sendCtx, message)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	s.logger.Debug("mailgun accepted reminder",
		zap.String("address", address),
		zap.String("message_id", messageID))
	return nil
}

// NormalizeAPIBase validates a Mailgun API base URL and appends the default API
// version when the path names none. An empty input stays empty.
func NormalizeAPIBase(raw string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: api base %q must be an http or https URL", ErrInvalidMailgunConfig, raw)
	}
	if !apiVersionSuffix.MatchString(parsed.Path) {
		trimmed += defaultAPIVersion
	}
	return trimmed, nil
}
