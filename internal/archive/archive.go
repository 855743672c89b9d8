// Package archive ships assessment documents to OpenSearch for long-term
// analytics. Archival is strictly best effort: the queue drops under
// pressure and indexing failures never reach the decision path.
package archive

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sentrygate/sentrygate/common/logging"
	"github.com/sentrygate/sentrygate/internal/metrics"
	"github.com/sentrygate/sentrygate/internal/models"
)

// DefaultQueueSize is the archive queue capacity.
const DefaultQueueSize = 10000

// indexTimeout bounds one indexing call.
const indexTimeout = 5 * time.Second

// Indexer writes one document to the archive backend.
type Indexer interface {
	Index(ctx context.Context, index, docID string, body []byte) error
}

// Archiver buffers assessments and indexes them in the background.
type Archiver struct {
	indexer Indexer
	index   string
	queue   chan *models.RiskAssessment
	logger  *logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewArchiver creates an archiver and starts its background writer.
// queueSize <= 0 selects DefaultQueueSize.
func NewArchiver(indexer Indexer, index string, queueSize int, logger *logging.Logger) *Archiver {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	a := &Archiver{
		indexer: indexer,
		index:   index,
		queue:   make(chan *models.RiskAssessment, queueSize),
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go a.run()

	return a
}

// Enqueue hands an assessment to the background writer. Returns false when
// the queue is full and the assessment was dropped.
func (a *Archiver) Enqueue(assessment *models.RiskAssessment) bool {
	if a == nil {
		return false
	}
	select {
	case a.queue <- assessment:
		metrics.ArchiveQueueDepth.Set(float64(len(a.queue)))
		return true
	default:
		metrics.ArchiveDropped.Inc()
		return false
	}
}

// run drains the queue until Close.
func (a *Archiver) run() {
	defer close(a.done)

	for {
		select {
		case assessment := <-a.queue:
			a.write(assessment)
			metrics.ArchiveQueueDepth.Set(float64(len(a.queue)))
		case <-a.stop:
			// Drain what is already buffered, then exit.
			for {
				select {
				case assessment := <-a.queue:
					a.write(assessment)
				default:
					return
				}
			}
		}
	}
}

func (a *Archiver) write(assessment *models.RiskAssessment) {
	body, err := json.Marshal(assessment)
	if err != nil {
		a.logger.ErrorContext(context.Background(), "failed to marshal assessment for archive",
			logging.Err(err))
		metrics.ArchiveErrors.Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	if err := a.indexer.Index(ctx, a.index, assessment.ID, body); err != nil {
		a.logger.WarnContext(ctx, "failed to archive assessment", logging.Err(err))
		metrics.ArchiveErrors.Inc()
	}
}

// Close stops the writer after draining buffered assessments.
func (a *Archiver) Close() {
	if a == nil {
		return
	}
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}
