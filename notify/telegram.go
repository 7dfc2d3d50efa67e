package notify

import (
	"context"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const telegramQueueSize = 64

type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram delivers messages to one chat from a background worker. When the
// queue is full new messages are dropped.
type Telegram struct {
	bot    sender
	chatID int64
	log    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan string
	done   chan struct{}
}

func NewTelegram(token string, chatID int64, log *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, log), nil
}

func newTelegram(bot sender, chatID int64, log *zap.Logger) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Telegram{
		bot:    bot,
		chatID: chatID,
		log:    log.With(zap.String("component", "telegram")),
		queue:  make(chan string, telegramQueueSize),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *Telegram) Notify(_ context.Context, text string) {
	if t == nil || t.chatID == 0 {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		t.log.Debug("telegram closed, message dropped")
		return
	}
	select {
	case t.queue <- text:
	default:
		t.log.Warn("telegram queue full, message dropped")
	}
}

// Close stops accepting messages and waits for queued ones to be sent.
func (t *Telegram) Close() error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()
	<-t.done
	return nil
}

func (t *Telegram) run() {
	defer close(t.done)
	for msg := range t.queue {
		if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
			t.log.Warn("telegram send failed", zap.Error(err))
		}
	}
}
