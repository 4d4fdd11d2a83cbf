// Package audit records completed collection cycles. Each cycle resets the
// server's statistics counters, so the trail of when cycles ran and what they
// produced is kept outside the collector itself.
//
// Events flow through a publish-subscribe pipeline: the collection loop
// publishes, a broadcaster fans events out, and subscribers append them to a
// file or post them to an HTTP endpoint.
package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	models "github.com/ovoronin/pgobserve/internal/model"
)

// CycleLogger publishes cycle events into the audit pipeline.
type CycleLogger interface {
	// Log records one completed cycle with the number of records it
	// produced and how long it took.
	Log(records int, duration time.Duration)
}

type cycleLogger struct {
	dbKey     string
	eventChan chan<- models.CycleEvent
	log       *zap.SugaredLogger
}

// NewCycleLogger creates a CycleLogger publishing into eventChan.
func NewCycleLogger(dbKey string, eventChan chan<- models.CycleEvent, logger *zap.SugaredLogger) CycleLogger {
	return &cycleLogger{dbKey: dbKey, eventChan: eventChan, log: logger}
}

// Log publishes a cycle event. A full channel drops the event instead of
// blocking the collection loop.
func (a *cycleLogger) Log(records int, duration time.Duration) {
	event := models.CycleEvent{
		TS:         time.Now().Format(time.RFC3339),
		DBKey:      a.dbKey,
		Records:    records,
		DurationMS: duration.Milliseconds(),
	}

	select {
	case a.eventChan <- event:
	default:
		a.log.Warnw("audit event dropped, channel is full")
	}
}

// Broadcaster fans events from source out to every subscriber channel. A
// blocked subscriber has its event discarded so one slow destination cannot
// stall the others.
func Broadcaster(source <-chan models.CycleEvent, subs ...chan<- models.CycleEvent) {
	for evt := range source {
		for _, subChan := range subs {
			select {
			case subChan <- evt:
			default:
			}
		}
	}
}

// FileSubscriber appends events to path as JSON lines.
func FileSubscriber(events <-chan models.CycleEvent, path string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorf("audit file subscriber: marshal: %v", err)
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Errorf("audit file subscriber: open %s: %v", path, err)
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			logger.Errorf("audit file subscriber: write: %v", err)
		}
		f.Close()
	}
}

// URLSubscriber posts each event to url as JSON.
func URLSubscriber(events <-chan models.CycleEvent, url string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorf("audit url subscriber: marshal: %v", err)
			continue
		}
		resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
		if err != nil {
			logger.Errorf("audit url subscriber: post to %s: %v", url, err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
