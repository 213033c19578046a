package debounce

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/powerctl/internal/event"
	"github.com/sweeney/powerctl/internal/gpio"
)

// Defaults: the line must stay quiet for 5 consecutive 1 ms ticks.
const (
	DefaultPeriod = time.Millisecond
	DefaultTicks  = 5
)

// Config controls the sampling timer.
type Config struct {
	Period time.Duration
	Ticks  int

	// MaxArmTicks forces a sample after this many ticks of continuous bounce.
	// Zero disables the fallback, so a line that never settles emits nothing.
	MaxArmTicks int
}

// Ticker is the periodic timer driving the countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc starts a ticker with the given period.
type TickerFunc func(time.Duration) Ticker

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Filter debounces one button line.
type Filter struct {
	cfg       Config
	line      gpio.Input
	out       event.Emitter
	newTicker TickerFunc
	log       *logrus.Entry

	edges   chan struct{}
	counter *Counter

	emitted atomic.Uint64
	failed  atomic.Uint64
}

// Option configures a Filter.
type Option func(*Filter)

// WithTicker replaces the ticker factory (tests).
func WithTicker(fn TickerFunc) Option {
	return func(f *Filter) { f.newTicker = fn }
}

// New creates a Filter sampling line and emitting key events to out.
func New(cfg Config, line gpio.Input, out event.Emitter, log *logrus.Entry, opts ...Option) *Filter {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Ticks <= 0 {
		cfg.Ticks = DefaultTicks
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	f := &Filter{
		cfg:       cfg,
		line:      line,
		out:       out,
		newTicker: NewTimeTicker,
		log:       log.WithField("component", "debounce"),
		edges:     make(chan struct{}, 1),
		counter:   NewCounter(cfg.Ticks, cfg.MaxArmTicks),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Edge signals a rising or falling edge. It never blocks and never allocates
// events, so it is safe to call from the line's event handler. Edges arriving
// while one is already pending coalesce into a single re-arm.
func (f *Filter) Edge() {
	select {
	case f.edges <- struct{}{}:
	default:
	}
}

// Run owns the countdown until ctx is done. The ticker only runs while armed.
func (f *Filter) Run(ctx context.Context) error {
	var (
		ticker Ticker
		tick   <-chan time.Time
	)
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-f.edges:
			f.counter.Arm()
			if ticker == nil {
				ticker = f.newTicker(f.cfg.Period)
				tick = ticker.C()
			}

		case <-tick:
			if !f.counter.Tick() {
				continue
			}
			stop()
			f.emit()
		}
	}
}

func (f *Filter) emit() {
	level, err := f.line.Read()
	if err != nil {
		f.failed.Add(1)
		f.log.WithError(err).Error("sample button line")
		return
	}
	state := event.KeyReleased
	if gpio.Pressed(level) {
		state = event.KeyPressed
	}
	f.log.WithField("key", state).Debug("key settled")
	if err := f.out.Emit(event.KindKey, func(e *event.Event) { e.Key = state }); err != nil {
		f.failed.Add(1)
		return
	}
	f.emitted.Add(1)
}

// Emitted returns the number of key events enqueued.
func (f *Filter) Emitted() uint64 {
	return f.emitted.Load()
}

// Failed returns the number of settled edges that produced no event.
func (f *Filter) Failed() uint64 {
	return f.failed.Load()
}
