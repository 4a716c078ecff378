package postdetection

import (
	"context"
	"encoding/json"

	"github.com/memlab/memwatch/internal/types"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/process"
	"gopkg.in/guregu/null.v3"
)

const maxConnectionsLimit = 50

var ErrProcessNotFound = errors.New("process not found")

// MetadataReport describes a live process. Fields the platform refuses to expose
// stay empty and are listed in Unavailable.
type MetadataReport struct {
	Pid            int32     `json:"pid"`
	Name           string    `json:"name"`
	MachineId      string    `json:"machine_id"`
	ExecutablePath string    `json:"executable_path"`
	CmdLine        string    `json:"cmd_line"`
	CpuPercent     float64   `json:"cpu_percent"`
	MemPercent     float32   `json:"memory_percent"`
	NumThreads     int32     `json:"num_threads"`
	CreateTime     null.Time `json:"create_time"`
	Cwd            string    `json:"cwd"`
	Connections    []string  `json:"connections"`
	Unavailable    []string  `json:"unavailable,omitempty"`
}

func NewMetadataReport(ctx context.Context, machineId string, ps *process.Process) (*MetadataReport, error) {
	if ps == nil {
		return nil, ErrProcessNotFound
	}

	report := &MetadataReport{Pid: ps.Pid, MachineId: machineId, Connections: []string{}}

	name, err := ps.NameWithContext(ctx)
	if err != nil {
		if errors.Cause(err) == process.ErrorProcessNotRunning {
			return nil, ErrProcessNotFound
		}
		return nil, errors.WithMessagef(err, "get process' name (pid: '%d')", ps.Pid)
	}
	report.Name = name

	if report.ExecutablePath, err = ps.ExeWithContext(ctx); err != nil {
		report.unavailable("executable_path")
	}
	if report.CmdLine, err = ps.CmdlineWithContext(ctx); err != nil {
		report.unavailable("cmd_line")
	}
	if report.CpuPercent, err = ps.CPUPercentWithContext(ctx); err != nil {
		report.unavailable("cpu_percent")
	}
	if report.MemPercent, err = ps.MemoryPercentWithContext(ctx); err != nil {
		report.unavailable("memory_percent")
	}
	if report.NumThreads, err = ps.NumThreadsWithContext(ctx); err != nil {
		report.unavailable("num_threads")
	}
	if createTime, err := ps.CreateTimeWithContext(ctx); err != nil {
		report.unavailable("create_time")
	} else {
		report.CreateTime = null.TimeFrom(types.TimeFromMilliseconds(createTime))
	}
	if report.Cwd, err = ps.CwdWithContext(ctx); err != nil {
		report.unavailable("cwd")
	}
	if connections, err := listConnections(ctx, ps); err != nil {
		report.unavailable("connections")
	} else {
		report.Connections = connections
	}

	return report, nil
}

func (m *MetadataReport) unavailable(field string) {
	m.Unavailable = append(m.Unavailable, field)
}

func listConnections(ctx context.Context, ps *process.Process) ([]string, error) {
	rawConnectionList, err := ps.ConnectionsMaxWithContext(ctx, maxConnectionsLimit)
	if err != nil {
		return nil, err
	}

	connections := make([]string, 0, len(rawConnectionList))
	for _, rawConnection := range rawConnectionList {
		connections = append(connections, rawConnection.String())
	}
	return connections, nil
}

func (m *MetadataReport) ReportName() string {
	return "metadata-report"
}

func (m *MetadataReport) DumpReport() ([]byte, error) {
	return json.Marshal(m)
}
