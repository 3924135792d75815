package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/catalystpanel/catalyst/pkg/log"
	"github.com/catalystpanel/catalyst/pkg/storage"
	"github.com/catalystpanel/catalyst/pkg/types"
)

const queueDepth = 256

// Writer records audit entries without ever blocking its callers
type Writer struct {
	store storage.Store

	ch       chan *types.AuditEntry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger zerolog.Logger
}

// NewWriter creates and starts an audit writer
func NewWriter(store storage.Store) *Writer {
	w := &Writer{
		store:  store,
		ch:     make(chan *types.AuditEntry, queueDepth),
		stopCh: make(chan struct{}),
		logger: log.WithComponent("audit"),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record enqueues one audit entry. details is marshaled to JSON; a nil
// details records an empty object. Never blocks: a full queue drops the
// entry with a process log line.
func (w *Writer) Record(actor, action, resource, resourceID string, details any) {
	raw := json.RawMessage("{}")
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}

	entry := &types.AuditEntry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		Actor:      actor,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    raw,
	}

	select {
	case w.ch <- entry:
	default:
		w.logger.Warn().Str("action", action).Msg("audit queue full, entry dropped")
	}
}

// Close drains the queue and stops the writer
func (w *Writer) Close() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case entry := <-w.ch:
			w.write(entry)
		case <-w.stopCh:
			for {
				select {
				case entry := <-w.ch:
					w.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(entry *types.AuditEntry) {
	if err := w.store.AppendAudit(entry); err != nil {
		w.logger.Warn().Err(err).Str("action", entry.Action).Msg("audit append failed")
	}
}
