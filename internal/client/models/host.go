package models

import "gopkg.in/guregu/null.v3"

type Host struct {
	MachineId       string    `json:"machine_id"`
	PublicIpAddress string    `json:"public_ip_address,omitempty"`
	Hostname        string    `json:"hostname"`
	LastBootTime    null.Time `json:"last_boot_at"`
	OS              string    `json:"operating_system"`
	Platform        string    `json:"platform"`
	PlatformVersion string    `json:"platform_version"`
	KernelVersion   string    `json:"kernel_version"`
}
