package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/predico/internal/contracts"
	"github.com/wonny/predico/internal/metrics"
	"github.com/wonny/predico/pkg/logger"
)

// DefaultQueueSize bounds pending events before Notify starts dropping
const DefaultQueueSize = 256

// Dispatcher queues notifications and delivers them to its sinks from a
// single worker, throttled to a fixed rate. Notify never blocks; when the
// queue is full the event is dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Event
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Collector
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

var _ contracts.Notifier = (*Dispatcher)(nil)

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	QueueSize  int
	RatePerSec float64
	Timeout    time.Duration
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(cfg DispatcherConfig, m *metrics.Collector, log *logger.Logger, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = int(cfg.RatePerSec) + 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, cfg.QueueSize),
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		metrics: m,
		log:     log.Component("notify"),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Notify implements contracts.Notifier
func (d *Dispatcher) Notify(_ context.Context, templateKey, destination string, args map[string]interface{}) {
	e := Event{Template: templateKey, Destination: destination, Args: args, At: d.now().UTC()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	select {
	case d.queue <- e:
	default:
		d.metrics.NotificationDropped()
		d.log.WithField("template", templateKey).Warn("notification queue full, dropping event")
	}
}

// Start runs the delivery worker until ctx is cancelled or Stop is called
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.stopped {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-d.queue:
				if !ok {
					return
				}
				if err := d.limiter.Wait(ctx); err != nil {
					return
				}
				d.deliver(ctx, e)
			}
		}
	}()
}

// Stop closes the queue and waits for queued events to drain
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		<-d.done
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := s.Deliver(sctx, e)
		cancel()
		if err != nil {
			d.log.WithError(err).WithFields(map[string]interface{}{
				"sink":     s.Name(),
				"template": e.Template,
			}).Warn("notification delivery failed")
		}
	}
}
