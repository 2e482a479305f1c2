package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signalHub/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Config holds the bot credentials and transport settings.
type Config struct {
	BotToken string
	BaseURL  string // Overridable for tests
	Timeout  time.Duration
	Logger   ports.Logger
}

// Channel sends HTML messages through the Telegram Bot API.
type Channel struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   ports.Logger
}

// New creates a Telegram message channel.
func New(cfg Config) (*Channel, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("%w: telegram bot token is required", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfigurationError)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Channel{
		botToken: cfg.BotToken,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}, nil
}

// Send posts message to the chat identified by destination.
func (c *Channel) Send(ctx context.Context, destination, message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)

	data := url.Values{}
	data.Set("chat_id", destination)
	data.Set("text", message)
	data.Set("parse_mode", "HTML")
	data.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("telegram send: %w: %w", ports.ErrTimeout, err)
		}
		return fmt.Errorf("telegram send: %w: %w", ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusOK:
		c.logger.Debug(ctx, "Telegram message sent", map[string]interface{}{"chat_id": destination})
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("telegram API: %w: %s", ports.ErrRateLimited, string(body))
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("telegram API: %w: %s", ports.ErrAuthenticationFailed, string(body))
	default:
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(body))
	}
}

// LogChannel writes messages to the logger instead of sending them.
// It stands in for Telegram when no bot token is configured.
type LogChannel struct {
	Logger ports.Logger
}

// Send logs the message.
func (l LogChannel) Send(ctx context.Context, destination, message string) error {
	l.Logger.Info(ctx, "Message (not sent, no bot token)", map[string]interface{}{"destination": destination, "text": message})
	return nil
}
