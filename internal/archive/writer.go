package archive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/config"
	"github.com/atharv404/kumele-ads/internal/metrics"
	"github.com/atharv404/kumele-ads/internal/models"
)

// flushTimeout bounds one batch insert so a stuck archive cannot wedge the
// writer loop.
const flushTimeout = 10 * time.Second

// BatchSink receives flushed event batches.
type BatchSink interface {
	InsertBatch(ctx context.Context, events []*models.AdEvent) error
}

// BatchWriter buffers events in memory and flushes them to the sink when
// the batch fills or the interval elapses. Enqueue never blocks the caller:
// when the buffer is full the event is dropped and counted. A failed flush
// drops its batch too; the archive is a copy, not the source of truth.
type BatchWriter struct {
	sink          BatchSink
	events        chan *models.AdEvent
	batchSize     int
	flushInterval time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewBatchWriter(sink BatchSink, cfg config.ClickHouseConfig, m *metrics.Metrics, logger *zap.Logger) *BatchWriter {
	return &BatchWriter{
		sink:          sink,
		events:        make(chan *models.AdEvent, cfg.BufferSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		metrics:       m,
		logger:        logger,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the writer loop.
func (w *BatchWriter) Start() {
	go w.run()
}

// Enqueue hands one event to the writer without blocking.
func (w *BatchWriter) Enqueue(e *models.AdEvent) {
	select {
	case <-w.quit:
		w.metrics.RecordArchiveDrop()
		return
	default:
	}
	select {
	case w.events <- e:
	default:
		w.metrics.RecordArchiveDrop()
		w.logger.Warn("archive buffer full, dropping event",
			zap.String("ad_id", e.AdID),
			zap.String("event_type", string(e.EventType)))
	}
}

// Close stops the writer after draining buffered events and blocks until
// the final flush finished.
func (w *BatchWriter) Close() {
	w.once.Do(func() { close(w.quit) })
	<-w.done
}

func (w *BatchWriter) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.AdEvent, 0, w.batchSize)
	for {
		select {
		case e := <-w.events:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				batch = w.flush(batch)
			}
		case <-ticker.C:
			batch = w.flush(batch)
		case <-w.quit:
			for {
				select {
				case e := <-w.events:
					batch = append(batch, e)
					if len(batch) >= w.batchSize {
						batch = w.flush(batch)
					}
				default:
					w.flush(batch)
					return
				}
			}
		}
	}
}

func (w *BatchWriter) flush(batch []*models.AdEvent) []*models.AdEvent {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := w.sink.InsertBatch(ctx, batch); err != nil {
		w.metrics.RecordArchiveFlush("error", len(batch))
		w.logger.Error("failed to flush archive batch",
			zap.Int("events", len(batch)),
			zap.Error(err))
	} else {
		w.metrics.RecordArchiveFlush("ok", len(batch))
		w.logger.Debug("flushed archive batch", zap.Int("events", len(batch)))
	}
	return batch[:0]
}
