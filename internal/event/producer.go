package event

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Emitter allocates, fills and enqueues an event in one step.
type Emitter interface {
	Emit(kind Kind, fill func(*Event)) error
}

// Producer binds a pool to the queue it feeds.
type Producer struct {
	pool  *Pool
	queue *Queue
	log   *logrus.Entry
}

// NewProducer returns a Producer. A nil logger uses the logrus standard logger.
func NewProducer(pool *Pool, queue *Queue, log *logrus.Entry) *Producer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Producer{pool: pool, queue: queue, log: log.WithField("component", "event")}
}

// Emit allocates an event of the given kind, lets fill populate its payload and
// enqueues it. Allocation failure is logged and the event dropped; a later
// physical action produces a fresh attempt.
func (p *Producer) Emit(kind Kind, fill func(*Event)) error {
	e, err := p.pool.Alloc(kind)
	if err != nil {
		p.log.WithError(err).WithField("kind", kind).Warn("dropping event")
		return err
	}
	if fill != nil {
		fill(e)
	}
	if err := p.queue.Enqueue(e); err != nil {
		p.pool.Free(e)
		p.log.WithError(err).WithField("kind", kind).Warn("dropping event")
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return nil
}
