package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jpillora/backoff"

	"mt5_dashboard/pkg/models"
)

const (
	queueSize   = 64
	maxAttempts = 5
)

// ErrQueueFull - очередь отправки переполнена, уведомление не принято
var ErrQueueFull = errors.New("telegram queue is full")

// Sender - часть tgbotapi.BotAPI, через которую уходят сообщения
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Service доставляет уведомления панели в один Telegram чат.
// Notify только ставит сообщение в очередь, отправка с повторами идет в Run.
type Service struct {
	sender Sender
	chatID int64
	logger *slog.Logger
	queue  chan models.Notification

	// minDelay и maxDelay - границы паузы между повторами
	minDelay time.Duration
	maxDelay time.Duration
}

// New авторизует бота по токену и создает сервис
func New(token string, chatID int64, logger *slog.Logger) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	logger.Info("✅ Bot authorized", slog.String("username", bot.Self.UserName))

	return NewWithSender(bot, chatID, logger), nil
}

// NewWithSender создает сервис поверх готового отправителя
func NewWithSender(sender Sender, chatID int64, logger *slog.Logger) *Service {
	return &Service{
		sender:   sender,
		chatID:   chatID,
		logger:   logger.With(slog.String("component", "telegram")),
		queue:    make(chan models.Notification, queueSize),
		minDelay: 500 * time.Millisecond,
		maxDelay: 30 * time.Second,
	}
}

// Notify ставит уведомление в очередь отправки
func (s *Service) Notify(_ context.Context, n models.Notification) error {
	select {
	case s.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run отправляет уведомления из очереди до отмены контекста
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("📨 Telegram notifier started", slog.Int64("chat_id", s.chatID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("🛑 Telegram notifier stopped", slog.Int("pending", len(s.queue)))
			return
		case n := <-s.queue:
			if err := s.deliver(ctx, n); err != nil {
				s.logger.Error("Failed to deliver notification",
					slog.String("id", n.ID),
					slog.Any("error", err))
			}
		}
	}
}

// deliver отправляет одно уведомление, повторяя временные ошибки
func (s *Service) deliver(ctx context.Context, n models.Notification) error {
	b := &backoff.Backoff{
		Min:    s.minDelay,
		Max:    s.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	text := FormatNotification(n)

	for {
		err := s.SendHTMLMessage(s.chatID, text)
		if err == nil {
			return nil
		}

		if !retryable(err) || b.Attempt()+1 >= maxAttempts {
			return err
		}

		delay := b.Duration()
		if after := retryAfter(err); after > delay {
			delay = after
		}

		s.logger.Warn("Telegram send failed, retrying",
			slog.String("id", n.ID),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// SendMessage отправляет текстовое сообщение
func (s *Service) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.sender.Send(msg)

	return err
}

// SendHTMLMessage отправляет сообщение с HTML форматированием
func (s *Service) SendHTMLMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := s.sender.Send(msg)

	return err
}

// FormatNotification превращает уведомление в HTML сообщение
func FormatNotification(n models.Notification) string {
	icon := "ℹ️"

	switch n.Level {
	case models.NotifySuccess:
		icon = "✅"
	case models.NotifyError:
		icon = "❌"
	}

	return fmt.Sprintf("%s <b>%s</b>\n%s", icon, html.EscapeString(n.Title), html.EscapeString(n.Message))
}

// retryable - ошибки клиента 4xx, кроме 429, не повторяются
func retryable(err error) bool {
	tgErr, ok := apiError(err)
	if !ok {
		return true
	}

	return tgErr.Code == http.StatusTooManyRequests || tgErr.Code >= http.StatusInternalServerError || tgErr.Code == 0
}

func retryAfter(err error) time.Duration {
	if tgErr, ok := apiError(err); ok && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second
	}

	return 0
}

// apiError достает ответ Telegram API, библиотека отдает его по указателю или по значению
func apiError(err error) (tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}

	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val, true
	}

	return tgbotapi.Error{}, false
}
