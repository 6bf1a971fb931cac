// Package notify delivers flagged transactions to a Telegram chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Alias1177/txanomaly/models"
)

// Telegram rejects messages longer than this
const maxMessageLen = 4096

// Sender is the part of tgbotapi.BotAPI the notifier needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Options holds options for creating a Notifier
type Options struct {
	RequestTimeout  time.Duration
	MessagesPerSec  float64
	MaxRetries      uint64
	MaxRetryTimeout time.Duration
	InitialInterval time.Duration
}

// Notifier sends run alerts with rate limiting and retries
type Notifier struct {
	sender  Sender
	chatID  int64
	limiter *rate.Limiter
	opts    Options
	logger  zerolog.Logger
}

// New wraps an existing sender
func New(sender Sender, chatID int64, opts Options) *Notifier {
	// Set default values if not provided
	if opts.MessagesPerSec <= 0 {
		opts.MessagesPerSec = 1
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.MaxRetryTimeout == 0 {
		opts.MaxRetryTimeout = 30 * time.Second
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = backoff.DefaultInitialInterval
	}

	return &Notifier{
		sender:  sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSec), 1),
		opts:    opts,
		logger:  log.With().Str("component", "telegram_notifier").Logger(),
	}
}

// NewTelegram connects a bot with the given token
func NewTelegram(token string, chatID int64, opts Options) (*Notifier, error) {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	client := &http.Client{Timeout: opts.RequestTimeout}

	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("initializing Telegram bot: %w", err)
	}
	return New(bot, chatID, opts), nil
}

// NotifyRun sends the flagged rows of run, split across as many messages as needed.
// Runs without anomalies send nothing.
func (n *Notifier) NotifyRun(ctx context.Context, run *models.Run) error {
	if len(run.Anomalies) == 0 {
		n.logger.Debug().Msg("No anomalies, skipping alert")
		return nil
	}

	messages := FormatMessages(run, maxMessageLen)
	for i, text := range messages {
		if err := n.send(ctx, text); err != nil {
			return fmt.Errorf("sending message %d/%d: %w", i+1, len(messages), err)
		}
	}

	n.logger.Info().
		Int("messages", len(messages)).
		Int("anomalies", len(run.Anomalies)).
		Int64("chat_id", n.chatID).
		Msg("Alert delivered")
	return nil
}

func (n *Notifier) send(ctx context.Context, text string) error {
	// Wait for rate limiter
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, text)

	operation := func() error {
		_, err := n.sender.Send(msg)
		if err == nil {
			return nil
		}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		n.logger.Warn().Err(err).Msg("Send failed, retrying")
		return err
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = n.opts.MaxRetryTimeout
	backoffStrategy.InitialInterval = n.opts.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(backoffStrategy, n.opts.MaxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("after retries: %w", err)
	}
	return nil
}

// FormatMessages renders the alert text, one line per flagged row, and
// splits it so that no message exceeds limit bytes. Every message repeats
// the header, and a row line that does not fit beside it is cut short.
// limit must leave room for the header plus at least one byte.
func FormatMessages(run *models.Run, limit int) []string {
	header := fmt.Sprintf("Anomaly alert: %d of %d transactions flagged (run %s)\n",
		len(run.Anomalies), len(run.Transactions), run.RunID)
	room := limit - len(header)

	var messages []string
	var b strings.Builder
	b.WriteString(header)
	for _, tx := range run.Anomalies {
		line := fmt.Sprintf("#%d amount=%.2f hour=%d frequency=%d\n",
			tx.TransactionID, tx.Amount, tx.Time, tx.Frequency)
		if len(line) > room {
			line = line[:max(room-1, 0)] + "\n"
		}
		if b.Len()+len(line) > limit && b.Len() > len(header) {
			messages = append(messages, strings.TrimRight(b.String(), "\n"))
			b.Reset()
			b.WriteString(header)
		}
		b.WriteString(line)
	}
	messages = append(messages, strings.TrimRight(b.String(), "\n"))
	return messages
}
