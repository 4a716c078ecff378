package sampling

import (
	"context"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/memlab/memwatch/internal/types"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/mem"
	psUtil "github.com/shirou/gopsutil/process"
	"go.uber.org/zap"
)

// PsutilQuerier looks the target up in the live process table.
type PsutilQuerier struct {
	logger *zap.Logger
}

func NewPsutilQuerier(rootLogger *zap.Logger) *PsutilQuerier {
	return &PsutilQuerier{logger: rootLogger.Named("psutil-querier")}
}

func (q *PsutilQuerier) Query(ctx context.Context, processName string) (RawSample, error) {
	liveProcess, err := q.FindProcess(ctx, processName)
	if err != nil || liveProcess == nil {
		return RawSample{}, err
	}

	memoryInfo, err := liveProcess.MemoryInfoWithContext(ctx)
	if err != nil {
		if errors.Cause(err) == psUtil.ErrorProcessNotRunning {
			return RawSample{}, nil
		}
		return RawSample{}, internalErrors.WrappedErrQueryMemory(err, liveProcess.Pid)
	}

	return RawSample{
		Found:         true,
		VirtualBytes:  memoryInfo.VMS,
		ResidentBytes: memoryInfo.RSS,
	}, nil
}

// FindProcess returns the first live process named processName, compared case
// insensitively, or nil when there is none.
func (q *PsutilQuerier) FindProcess(ctx context.Context, processName string) (*psUtil.Process, error) {
	liveProcesses, err := psUtil.ProcessesWithContext(ctx)
	if err != nil {
		return nil, internalErrors.WrappedErrQueryProcesses(err)
	}

	var errs error

	for _, liveProcess := range liveProcesses {
		if int(liveProcess.Pid) == os.Getpid() { // Never match ourselves.
			continue
		}

		name, err := liveProcess.NameWithContext(ctx)
		if err != nil {
			// Processes exiting mid-scan are routine.
			errs = multierror.Append(errs, errors.WithMessagef(err, "get name for pid '%d'", liveProcess.Pid))
			continue
		}

		if strings.EqualFold(name, processName) {
			return liveProcess, nil
		}
	}

	if errs != nil {
		q.logger.Debug("Skipped unreadable processes during scan", zap.String("Process", processName),
			zap.Error(errs))
	}

	return nil, nil
}

// DetectTotalMemoryMb reads the installed physical memory.
func DetectTotalMemoryMb(ctx context.Context) (float64, error) {
	virtualMemory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, errors.WithMessage(err, "get virtual memory stats")
	}
	return types.MegabytesFromBytes(virtualMemory.Total), nil
}
