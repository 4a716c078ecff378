package general

import (
	"context"
	"encoding/json"

	"github.com/glendc/go-external-ip"
	"github.com/memlab/memwatch/internal/client/models"
	"github.com/memlab/memwatch/internal/types"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/host"
	"gopkg.in/guregu/null.v3"
)

type HostStatusReport struct {
	*models.Host
}

// NewHostStatusReport describes the monitoring host. Resolving the public address
// reaches out to external services, so it only happens when asked for.
func NewHostStatusReport(ctx context.Context, machineId string, resolvePublicIp bool) (*HostStatusReport, error) {
	hostStatusReport := &HostStatusReport{Host: &models.Host{MachineId: machineId}}

	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "get host info")
	}

	if resolvePublicIp {
		publicIpAddress, err := externalip.DefaultConsensus(nil, nil).ExternalIP()
		if err != nil {
			return nil, errors.WithMessage(err, "get external ip address")
		}
		hostStatusReport.PublicIpAddress = publicIpAddress.String()
	}

	hostStatusReport.Hostname = hostInfo.Hostname
	hostStatusReport.LastBootTime = null.TimeFrom(types.TimeFromTimestamp(int64(hostInfo.BootTime)))
	hostStatusReport.OS = hostInfo.OS
	hostStatusReport.Platform = hostInfo.Platform
	hostStatusReport.PlatformVersion = hostInfo.PlatformVersion
	hostStatusReport.KernelVersion = hostInfo.KernelVersion

	return hostStatusReport, nil
}

func (h *HostStatusReport) ReportName() string {
	return "host-status-report"
}

func (h *HostStatusReport) DumpReport() ([]byte, error) {
	return json.Marshal(map[string]*models.Host{"host": h.Host})
}
