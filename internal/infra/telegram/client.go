package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Client is a send-only Telegram wrapper used to alert operators about
// billing conditions that need manual follow-up.
type Client struct {
	api          *tgbotapi.BotAPI
	logger       *slog.Logger
	limiter      *rate.Limiter
	alertChatIDs []int64
}

// NewClient creates a new Telegram alert client
func NewClient(token string, alertChatIDs []int64, logger *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	// Telegram caps bots at 30 messages per second
	limiter := rate.NewLimiter(30, 1)

	return &Client{
		api:          bot,
		logger:       logger,
		limiter:      limiter,
		alertChatIDs: alertChatIDs,
	}, nil
}

// SendMessage sends a message to a single chat with rate limiting
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiting: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.api.Send(msg); err != nil {
		c.logger.Error("Failed to send telegram message",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

// Alert fans a message out to every configured operator chat. Delivery is
// best effort per chat; one unreachable operator does not block the rest.
func (c *Client) Alert(ctx context.Context, text string) error {
	var lastErr error
	for _, chatID := range c.alertChatIDs {
		if err := c.SendMessage(ctx, chatID, text); err != nil {
			lastErr = err
			continue
		}
	}
	if lastErr != nil {
		return fmt.Errorf("alert delivery incomplete: %w", lastErr)
	}
	return nil
}
