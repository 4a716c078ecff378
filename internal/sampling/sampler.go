package sampling

import (
	"context"

	"github.com/memlab/memwatch/internal/types"
	"go.uber.org/zap"
)

// RawSample is what a process querier reports for a single lookup.
type RawSample struct {
	Found         bool
	VirtualBytes  uint64
	ResidentBytes uint64
}

type ProcessQuerier interface {
	Query(ctx context.Context, processName string) (RawSample, error)
}

// Sample is one point-in-time observation in megabytes. Both sizes are zero when
// the process was not found.
type Sample struct {
	Found      bool
	VirtualMb  float64
	ResidentMb float64
}

type ErrorReporter func(processName string, err error)

// Adapter never fails: a querier error becomes a not-found sample and is handed to
// the error reporter instead.
type Adapter struct {
	logger   *zap.Logger
	querier  ProcessQuerier
	reporter ErrorReporter
}

func NewAdapter(rootLogger *zap.Logger, querier ProcessQuerier, reporter ErrorReporter) *Adapter {
	return &Adapter{
		logger:   rootLogger.Named("sampler-adapter"),
		querier:  querier,
		reporter: reporter,
	}
}

func (a *Adapter) Sample(ctx context.Context, processName string) Sample {
	raw, err := a.querier.Query(ctx, processName)
	if err != nil {
		a.logger.Warn("Failed to sample process", zap.String("Process", processName), zap.Error(err))
		if a.reporter != nil {
			a.reporter(processName, err)
		}
		return Sample{}
	}

	if !raw.Found {
		return Sample{}
	}

	return Sample{
		Found:      true,
		VirtualMb:  types.MegabytesFromBytes(raw.VirtualBytes),
		ResidentMb: types.MegabytesFromBytes(raw.ResidentBytes),
	}
}
