package journal

import (
	"context"
	"sync"
)

const defaultBufferSize = 1000

// Writer provides non-blocking envelope persistence with a buffered channel,
// so journaling never stalls the publish path.
type Writer struct {
	store     Store
	sessionID int64
	ch        chan *Record
	wg        sync.WaitGroup
	done      chan struct{}
}

// NewWriter creates a writer inserting into store under sessionID.
func NewWriter(store Store, sessionID int64) *Writer {
	w := &Writer{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan *Record, defaultBufferSize),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Save queues a record for persistence. Non-blocking; drops the record if
// the buffer is full.
func (w *Writer) Save(rec *Record) bool {
	rec.SessionID = w.sessionID
	select {
	case w.ch <- rec:
		return true
	default:
		// Buffer full, drop record
		return false
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for {
		select {
		case rec, ok := <-w.ch:
			if !ok {
				return
			}
			// Best effort insert, ignore errors
			_, _ = w.store.InsertMessage(context.Background(), rec)
		case <-w.done:
			// Drain remaining records
			for {
				select {
				case rec, ok := <-w.ch:
					if !ok {
						return
					}
					_, _ = w.store.InsertMessage(context.Background(), rec)
				default:
					return
				}
			}
		}
	}
}

// Close gracefully shuts down the writer, draining the buffer.
func (w *Writer) Close() {
	close(w.done)
	close(w.ch)
	w.wg.Wait()
}
