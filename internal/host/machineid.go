package host

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/pkg/errors"
)

const appId = "memwatch"

// MachineId returns an app-scoped hash of the host's machine id, so the raw id
// never leaves the host in alert payloads.
func MachineId() (string, error) {
	machineId, err := machineid.ProtectedID(appId)
	if err != nil {
		return "", errors.WithMessage(err, "get machine id")
	}
	return machineId, nil
}

// MachineIdOrHostname falls back to the hostname when no machine id is available.
func MachineIdOrHostname() string {
	if machineId, err := MachineId(); err == nil {
		return machineId
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "unknown"
}
