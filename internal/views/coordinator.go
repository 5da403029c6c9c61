package views

import (
	"fmt"
	"strings"
	"sync"
)

// View - вкладка панели
type View string

const (
	ViewControl    View = "control"
	ViewConfig     View = "config"
	ViewOperations View = "operations"
	ViewLogs       View = "logs"
	ViewAssets     View = "assets"
)

// AllViews - вкладки в порядке отображения
var AllViews = []View{ViewControl, ViewConfig, ViewOperations, ViewLogs, ViewAssets}

// ParseView разбирает имя вкладки
func ParseView(name string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllViews {
		if v == known {
			return v, nil
		}
	}

	return "", fmt.Errorf("unknown view %q", name)
}

// Coordinator хранит активную вкладку. Переключение синхронное и без сетевых запросов.
type Coordinator struct {
	mu       sync.RWMutex
	active   View
	onSelect func(prev, next View)
}

// NewCoordinator создает координатор с активной вкладкой control.
// onSelect вызывается после смены вкладки, может быть nil.
func NewCoordinator(onSelect func(prev, next View)) *Coordinator {
	return &Coordinator{active: ViewControl, onSelect: onSelect}
}

// Active возвращает активную вкладку
func (c *Coordinator) Active() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.active
}

// Select делает вкладку активной
func (c *Coordinator) Select(v View) error {
	if _, err := ParseView(string(v)); err != nil {
		return err
	}

	c.mu.Lock()
	prev := c.active
	c.active = v
	c.mu.Unlock()

	if prev != v && c.onSelect != nil {
		c.onSelect(prev, v)
	}

	return nil
}
