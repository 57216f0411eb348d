package engine

import (
	"go.uber.org/zap"

	"github.com/BaSui01/batchflow/types"
)

// Observer receives run lifecycle notifications. Implementations must
// be fast; they run inline between batches.
type Observer interface {
	// OnBatchStart is called before each batch with the range about to
	// run and the percentage completed so far.
	OnBatchStart(p types.Progress)

	// OnRetry is called before each batch re-attempt.
	OnRetry(runID string, attempt int, cause error)

	// OnComplete is called once when every item has been processed.
	OnComplete(runID string, totalItems int)

	// OnAbort is called once when the run stops with a failure.
	OnAbort(runID string, err error)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) OnBatchStart(types.Progress) {}
func (NopObserver) OnRetry(string, int, error)  {}
func (NopObserver) OnComplete(string, int)      {}
func (NopObserver) OnAbort(string, error)       {}

// LoggingObserver logs run progress through zap.
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver creates an observer that logs at info level.
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnBatchStart(p types.Progress) {
	o.logger.Info("batch starting",
		zap.String("run_id", p.RunID),
		zap.String("mode", string(p.Mode)),
		zap.Int("batch_start", p.BatchStart),
		zap.Int("batch_end", p.BatchEnd),
		zap.Int("total_items", p.TotalItems),
		zap.Float64("percent", p.Percent))
}

func (o *LoggingObserver) OnRetry(runID string, attempt int, cause error) {
	o.logger.Warn("batch retrying",
		zap.String("run_id", runID),
		zap.Int("attempt", attempt),
		zap.Error(cause))
}

func (o *LoggingObserver) OnComplete(runID string, totalItems int) {
	o.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.Int("total_items", totalItems))
}

func (o *LoggingObserver) OnAbort(runID string, err error) {
	o.logger.Error("run aborted",
		zap.String("run_id", runID),
		zap.Error(err))
}

var (
	_ Observer = NopObserver{}
	_ Observer = (*LoggingObserver)(nil)
)
