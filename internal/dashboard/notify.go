package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"mt5_dashboard/pkg/models"
)

// Notifier доставляет уведомления за пределы сессии
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier пишет уведомления в лог
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n models.Notification) error {
	level := slog.LevelInfo
	if n.Level == models.NotifyError {
		level = slog.LevelWarn
	}

	l.Logger.Log(context.Background(), level, "🔔 "+n.Title,
		slog.String("id", n.ID),
		slog.String("level", string(n.Level)),
		slog.String("message", n.Message))

	return nil
}

// MultiNotifier рассылает уведомление всем получателям, ошибки объединяются
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n models.Notification) error {
	var errs []error

	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

const feedSize = 50

// feed - кольцо последних уведомлений
type feed struct {
	mu    sync.Mutex
	items []models.Notification
}

func (f *feed) push(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, n)
	if len(f.items) > feedSize {
		f.items = f.items[len(f.items)-feedSize:]
	}
}

// recent возвращает уведомления, новые первыми
func (f *feed) recent() []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Notification, len(f.items))
	for i, n := range f.items {
		out[len(f.items)-1-i] = n
	}

	return out
}
