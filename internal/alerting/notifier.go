package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Notifier delivers an alert through one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert Alert) error
}

// Dispatcher fans an alert out to every configured channel. Channels fail
// independently; a failed send is logged and the rest still run.
type Dispatcher struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

// NewDispatcher constructs a dispatcher over the given channels.
func NewDispatcher(logger zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Channels lists the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		names = append(names, n.Name())
	}
	return names
}

// Dispatch sends the alert through all channels and returns the names of the
// channels that succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) []string {
	delivered := make([]string, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, alert); err != nil {
			d.logger.Error().Err(err).
				Str("channel", n.Name()).
				Str("symbol", alert.Symbol).
				Msg("alert channel dispatch failed")
			continue
		}
		delivered = append(delivered, n.Name())
	}
	return delivered
}

func renderMessage(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString("PRICE ALERT\n")
	builder.WriteString(fmt.Sprintf("Asset: %s (%s)\n", strings.ToUpper(alert.Symbol), alert.AssetType))
	builder.WriteString(fmt.Sprintf("Current Price: $%s\n", alert.Price.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Change: %s%% (%s)\n", alert.ChangePct.StringFixed(2), alert.Direction))
	builder.WriteString(fmt.Sprintf("Threshold: ±%s%%\n", alert.ThresholdPct.StringFixed(1)))
	builder.WriteString(fmt.Sprintf("Time: %s UTC", alert.At.UTC().Format(time.RFC3339)))
	return builder.String()
}

// ConsoleNotifier writes alerts to stdout. Always enabled.
type ConsoleNotifier struct {
	logger zerolog.Logger
}

// NewConsoleNotifier constructs the console channel.
func NewConsoleNotifier(logger zerolog.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger.With().Str("component", "alert_console").Logger()}
}

func (n *ConsoleNotifier) Name() string { return "console" }

func (n *ConsoleNotifier) Notify(ctx context.Context, alert Alert) error {
	divider := strings.Repeat("=", 50)
	fmt.Fprintf(os.Stdout, "\n%s\n%s\n%s\n\n", divider, renderMessage(alert), divider)
	n.logger.Info().Str("symbol", alert.Symbol).Msg("console alert sent")
	return nil
}

// EmailNotifier sends alerts over SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
	to     string
	logger zerolog.Logger
}

// NewEmailNotifier constructs the email channel.
func NewEmailNotifier(host string, port int, from, to, password string, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(host, port, from, password),
		from:   from,
		to:     to,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", n.to)
	msg.SetHeader("Subject", fmt.Sprintf("Price Alert: %s", strings.ToUpper(alert.Symbol)))
	msg.SetBody("text/plain", renderMessage(alert))

	if err := n.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	n.logger.Info().Str("symbol", alert.Symbol).Msg("email alert sent")
	return nil
}

// WebhookNotifier posts a Slack-compatible payload to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier constructs the webhook channel.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) error {
	color := "good"
	if alert.Direction == "down" {
		color = "danger"
	}

	payload := map[string]any{
		"text": renderMessage(alert),
		"attachments": []map[string]any{{
			"color": color,
			"fields": []map[string]any{
				{"title": "Asset", "value": strings.ToUpper(alert.Symbol), "short": true},
				{"title": "Current Price", "value": "$" + alert.Price.StringFixed(2), "short": true},
				{"title": "Change", "value": alert.ChangePct.StringFixed(2) + "%", "short": true},
				{"title": "Threshold", "value": "±" + alert.ThresholdPct.StringFixed(1) + "%", "short": true},
			},
			"footer": "Alert triggered at " + alert.At.UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info().Str("symbol", alert.Symbol).Msg("webhook alert sent")
	return nil
}

// TelegramNotifier pushes alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs the Telegram channel.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("symbol", alert.Symbol).Msg("telegram alert sent")
	return nil
}

var (
	_ Notifier = (*ConsoleNotifier)(nil)
	_ Notifier = (*EmailNotifier)(nil)
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
