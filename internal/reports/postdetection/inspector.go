package postdetection

import (
	"context"

	"github.com/shirou/gopsutil/process"
)

type processFinder interface {
	FindProcess(ctx context.Context, processName string) (*process.Process, error)
}

// Inspector builds metadata reports for processes looked up by name.
type Inspector struct {
	machineId string
	finder    processFinder
}

func NewInspector(machineId string, finder processFinder) *Inspector {
	return &Inspector{machineId: machineId, finder: finder}
}

func (i *Inspector) Inspect(ctx context.Context, processName string) (*MetadataReport, error) {
	ps, err := i.finder.FindProcess(ctx, processName)
	if err != nil {
		return nil, err
	}
	return NewMetadataReport(ctx, i.machineId, ps)
}
