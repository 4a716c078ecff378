package control

import (
	"context"
	"strings"
	"sync"

	"github.com/memlab/memwatch/internal/control/messages"
	"github.com/memlab/memwatch/internal/control/responses"
	"github.com/memlab/memwatch/internal/detection"
	"github.com/memlab/memwatch/internal/logging"
	"github.com/memlab/memwatch/internal/reports/postdetection"
	"github.com/memlab/memwatch/internal/state"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNotRunning  = errors.New("monitoring is not running")
	ErrNoInspector = errors.New("process inspection unavailable")
)

type controller interface {
	Start(config detection.MonitorConfig) (detection.SessionHandle, error)
	Stop(handle detection.SessionHandle) error
	Session() (detection.SessionHandle, bool)
	Snapshot() state.Snapshot
}

// Plane is the only surface a presentation layer talks to. Settings changes apply
// to the next session.
type Plane struct {
	logger       *zap.Logger
	feed         *logging.Feed
	controller   controller
	lock         sync.Mutex
	config       detection.MonitorConfig
	settingsPath string
	inspector    ProcessInspector
}

func NewPlane(rootLogger *zap.Logger, feed *logging.Feed, controller controller, planeConfig *PlaneConfig) (*Plane,
	error) {
	if valid, err := planeConfig.Valid(); !valid {
		return nil, errors.WithMessage(err, "validate plane config")
	}

	return &Plane{
		logger:       rootLogger.Named("control-plane"),
		feed:         feed,
		controller:   controller,
		config:       planeConfig.MonitorConfig.Clone(),
		settingsPath: planeConfig.SettingsPath,
		inspector:    planeConfig.Inspector,
	}, nil
}

func (p *Plane) Start() (detection.SessionHandle, error) {
	p.lock.Lock()
	config := p.config.Clone()
	p.lock.Unlock()

	return p.controller.Start(config)
}

func (p *Plane) Stop() error {
	handle, running := p.controller.Session()
	if !running {
		return ErrNotRunning
	}
	return p.controller.Stop(handle)
}

func (p *Plane) Settings() *responses.Settings {
	p.lock.Lock()
	defer p.lock.Unlock()

	return responses.NewSettings(p.config)
}

// UpdateSettings replaces recipients and threshold from raw operator input. Bad
// entries never reach the monitor: malformed addresses are dropped and an invalid
// threshold keeps the current value. The returned error only reports a failure to
// persist the new settings.
func (p *Plane) UpdateSettings(update *messages.SettingsUpdate) (*responses.Settings, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	config := p.config.Clone()
	var warnings []string

	if update.Recipients != nil {
		recipients, rejected := ParseRecipients(*update.Recipients)
		for _, address := range rejected {
			p.logger.Warn("Ignoring invalid recipient", zap.String("Recipient", address))
			p.feed.Recordf("Ignoring invalid email address '%s'.", address)
			warnings = append(warnings, "invalid email address '"+address+"'")
		}
		config.Recipients = recipients
	}

	if update.ThresholdPercent != nil {
		threshold, err := ParseThreshold(*update.ThresholdPercent, config.ThresholdPercent)
		if err != nil {
			p.logger.Warn("Invalid threshold, keeping previous", zap.Error(err),
				zap.Float64("ThresholdPercent", threshold))
			p.feed.Recordf("Invalid threshold '%s'; using %s%%.", strings.TrimSpace(*update.ThresholdPercent),
				formatThreshold(threshold))
			warnings = append(warnings, err.Error())
		}
		config.ThresholdPercent = threshold
	}

	p.config = config
	p.feed.Recordf("Settings saved: Emails = %s | Threshold = %s%%", strings.Join(config.Recipients, ", "),
		formatThreshold(config.ThresholdPercent))

	settings := responses.NewSettings(config)
	settings.Warnings = warnings

	if p.settingsPath == "" {
		return settings, nil
	}
	if err := SaveSettingsFile(p.settingsPath, NewSettingsFile(config)); err != nil {
		p.logger.Error("Failed to persist settings", zap.String("Path", p.settingsPath), zap.Error(err))
		return settings, err
	}
	return settings, nil
}

func (p *Plane) Status() state.Snapshot {
	return p.controller.Snapshot()
}

// Process describes the live instance of the configured process.
func (p *Plane) Process(ctx context.Context) (*postdetection.MetadataReport, error) {
	if p.inspector == nil {
		return nil, ErrNoInspector
	}

	p.lock.Lock()
	processName := p.config.ProcessName
	p.lock.Unlock()

	return p.inspector.Inspect(ctx, processName)
}

func (p *Plane) Subscribe(buffer int) (<-chan string, func()) {
	return p.feed.Subscribe(buffer)
}

func (p *Plane) History() []string {
	return p.feed.History()
}

func joinRecipients(recipients []string) string {
	return strings.Join(recipients, ";")
}
