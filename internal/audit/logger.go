// Package audit writes best-effort usage and delivery logs in the background.
// Enqueueing never blocks and never fails the guarded operation: a full
// buffer drops the record with a warning, and writer errors are swallowed
// after logging.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/pkg/models"
)

const writeTimeout = 5 * time.Second

type entry struct {
	usage    *models.UsageLog
	delivery *models.DeliveryLog
}

// Logger is the asynchronous audit writer.
type Logger struct {
	store store.Store
	queue chan entry

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewLogger starts the background writer with the given buffer capacity.
func NewLogger(s store.Store, bufferSize int) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	l := &Logger{
		store: s,
		queue: make(chan entry, bufferSize),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

// RecordUsage enqueues one usage log row. Missing ID/CreatedAt are filled in.
func (l *Logger) RecordUsage(log *models.UsageLog) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	l.enqueue(entry{usage: log})
}

// RecordDelivery enqueues one delivery log row. Missing ID/CreatedAt are filled in.
func (l *Logger) RecordDelivery(log *models.DeliveryLog) {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	l.enqueue(entry{delivery: log})
}

func (l *Logger) enqueue(e entry) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- e:
	default:
		slog.Warn("audit buffer full, dropping record")
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		switch {
		case e.usage != nil:
			err = l.store.InsertUsageLog(ctx, e.usage)
		case e.delivery != nil:
			err = l.store.InsertDeliveryLog(ctx, e.delivery)
		}
		cancel()
		if err != nil {
			slog.Warn("audit write failed", "error", err)
		}
	}
}

// Close stops accepting records and drains the queue.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}
