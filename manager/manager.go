// Package manager is the coordinator between strategy processes and the
// brokerage account. A single goroutine runs the loop in Run and owns all
// mutable state: the tracked tickets, their trade context and the basket
// governor.
package manager

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/rustyeddy/trademanager/broker"
	"github.com/rustyeddy/trademanager/config"
	"github.com/rustyeddy/trademanager/intake"
	"github.com/rustyeddy/trademanager/journal"
	"github.com/rustyeddy/trademanager/notify"
	"github.com/rustyeddy/trademanager/risk"
	"go.uber.org/zap"
)

var (
	// ErrConnect means the broker could not be reached at startup.
	ErrConnect = errors.New("broker connection failed")
	// ErrWrongAccount means the terminal is logged into an account other
	// than the authorized one.
	ErrWrongAccount = errors.New("unauthorized account")
	// ErrNoConfig means no valid configuration has ever been loaded.
	ErrNoConfig = errors.New("no valid configuration")
)

// ConfigSource is satisfied by *config.Store.
type ConfigSource interface {
	Load() (*config.Config, error)
}

type Options struct {
	Config   ConfigSource
	Gateway  broker.Gateway
	Journal  journal.Journal
	Queue    *intake.Queue
	Notifier notify.Notifier
	Logger   *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// tradeContext is what the manager remembers about a ticket it opened until
// the trade is journaled.
type tradeContext struct {
	Meta       map[string]any
	StopLoss   float64
	TakeProfit float64
	RequestID  string
}

type Manager struct {
	cfg      ConfigSource
	gw       broker.Gateway
	journal  journal.Journal
	queue    *intake.Queue
	notifier notify.Notifier
	log      *zap.Logger
	now      func() time.Time

	governor *risk.Governor
	tracked  map[int64]string
	pending  map[int64]tradeContext

	lastSnapshot time.Time
	lastCfgErr   string
	account      broker.Account
	loopInterval time.Duration
	iterations   uint64

	status atomic.Pointer[Status]
}

func New(opts Options) (*Manager, error) {
	if opts.Config == nil || opts.Gateway == nil || opts.Journal == nil || opts.Queue == nil {
		return nil, errors.New("manager requires config, gateway, journal and queue")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger.With(zap.String("component", "manager"))
	m := &Manager{
		cfg:      opts.Config,
		gw:       opts.Gateway,
		journal:  opts.Journal,
		queue:    opts.Queue,
		notifier: opts.Notifier,
		log:      log,
		now:      opts.Now,
		governor: risk.NewGovernor(log),
		tracked:  make(map[int64]string),
		pending:  make(map[int64]tradeContext),
	}
	m.publishStatus()
	return m, nil
}

// Tracked returns a copy of the ticket to strategy map. Only call it from the
// loop goroutine or after Run has returned.
func (m *Manager) Tracked() map[int64]string {
	out := make(map[int64]string, len(m.tracked))
	for k, v := range m.tracked {
		out[k] = v
	}
	return out
}

func (m *Manager) Locked() bool {
	return m.governor.Locked()
}
