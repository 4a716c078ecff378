package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/memlab/memwatch/internal/alerting"
	"github.com/memlab/memwatch/internal/client"
	"github.com/memlab/memwatch/internal/control"
	"github.com/memlab/memwatch/internal/detection"
	"github.com/memlab/memwatch/internal/host"
	"github.com/memlab/memwatch/internal/logging"
	"github.com/memlab/memwatch/internal/metrics"
	"github.com/memlab/memwatch/internal/notify"
	"github.com/memlab/memwatch/internal/operations"
	"github.com/memlab/memwatch/internal/reports"
	"github.com/memlab/memwatch/internal/reports/general"
	"github.com/memlab/memwatch/internal/reports/postdetection"
	"github.com/memlab/memwatch/internal/sampling"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const version = "1.0"

var options struct {
	Process           string        `short:"p" long:"process" description:"Name of the process to monitor" default:"AutomationDesk.exe"`
	Threshold         float64       `short:"t" long:"threshold" description:"Alert threshold in percent of total memory" default:"70"`
	Recipients        string        `short:"r" long:"recipients" description:"Alert recipients, ';' or ',' delimited"`
	Interval          time.Duration `short:"i" long:"interval" description:"Poll interval" default:"5s"`
	Hysteresis        float64       `long:"hysteresis" description:"Usage growth in percent required before re-alerting" default:"5"`
	TotalMemory       float64       `long:"total-memory" description:"Total memory in MB usage is measured against" default:"4096"`
	DetectTotalMemory bool          `long:"detect-total-memory" description:"Measure usage against the host's physical memory"`
	RepeatCrashAlerts bool          `long:"repeat-crash-alerts" description:"Alert on every poll while the process is absent"`
	Config            string        `short:"c" long:"config" description:"YAML settings file, written back when settings change"`
	AuditLog          string        `short:"a" long:"audit-log" description:"Audit log file, empty for memory only" default:"memory_monitor.log"`

	Notifiers     []string      `short:"n" long:"notifier" description:"Notification channel" choice:"smtp" choice:"webhook" choice:"nats" choice:"log" default:"log"`
	SmtpHost      string        `long:"smtp-host" description:"SMTP server host"`
	SmtpPort      int           `long:"smtp-port" description:"SMTP server port" default:"587"`
	SmtpUsername  string        `long:"smtp-username" description:"SMTP username"`
	SmtpPassword  string        `long:"smtp-password" description:"SMTP password" env:"MEMWATCH_SMTP_PASSWORD"`
	SmtpFrom      string        `long:"smtp-from" description:"Sender address"`
	SmtpTimeout   time.Duration `long:"smtp-timeout" description:"SMTP dial and send timeout" default:"30s"`
	WebhookUrl    string        `long:"webhook-url" description:"Webhook url receiving JSON notifications"`
	NatsUrl       string        `long:"nats-url" description:"NATS server url"`
	NatsSubject   string        `long:"nats-subject" description:"NATS subject" default:"memwatch.alerts"`
	ResolvePublic bool          `long:"resolve-public-ip" description:"Include the public ip address in JSON notifications"`
	AsyncDispatch bool          `long:"async-dispatch" description:"Send notifications off the polling loop"`
	DispatchQueue int           `long:"dispatch-queue" description:"Pending notifications kept with async dispatch" default:"16"`
	Listen        string        `short:"l" long:"listen" description:"HTTP control address, e.g. 127.0.0.1:8080"`
	NoAutostart   bool          `long:"no-autostart" description:"Wait for a start request instead of monitoring immediately"`
	Debug         bool          `short:"d" long:"debug" description:"Debug mode"`
}

const (
	exitCodeErr     = 1
	shutdownTimeout = 10 * time.Second
)

type closer func()

type agent struct {
	logger     *zap.Logger
	feed       *logging.Feed
	controller *detection.Controller
	pipeline   *operations.Pipeline
	plane      *control.Plane
	server     *http.Server
	closers    []closer
}

func main() {
	if _, err := flags.Parse(&options); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Failed to parse arguments: %v\n", err)
		os.Exit(exitCodeErr)
	}

	logger, err := logging.NewLogger("memwatch", options.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(exitCodeErr)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newAgent(ctx, logger)
	if err != nil {
		logger.Fatal("Failed to start agent", zap.Error(err))
	}

	logger.Info("Start agent", zap.String("Version", version))
	if err := a.run(ctx); err != nil {
		logger.Error("Agent failed", zap.Error(err))
	}

	logger.Info("Stop agent")
	a.shutdown()
}

func flagSettings() *control.SettingsFile {
	threshold := options.Threshold
	hysteresis := options.Hysteresis
	repeat := options.RepeatCrashAlerts

	settings := &control.SettingsFile{
		ProcessName:           options.Process,
		ThresholdPercent:      &threshold,
		PollInterval:          options.Interval.String(),
		HysteresisStepPercent: &hysteresis,
		TotalMemoryMb:         options.TotalMemory,
		RepeatCrashAlerts:     &repeat,
	}
	if options.Recipients != "" {
		settings.Recipients = []string{options.Recipients}
	}
	return settings
}

func recordWarnings(logger *zap.Logger, feed *logging.Feed, source string, warnings []string) {
	for _, warning := range warnings {
		logger.Warn("Invalid setting, keeping fallback", zap.String("Source", source), zap.String("Warning", warning))
		feed.Record(warning)
	}
}

func monitorConfigFromOptions(ctx context.Context, logger *zap.Logger, feed *logging.Feed) (detection.MonitorConfig, error) {
	config, warnings, err := flagSettings().ApplyTo(detection.DefaultMonitorConfig())
	recordWarnings(logger, feed, "flags", warnings)
	if err != nil {
		return config, errors.WithMessage(err, "apply flags")
	}

	if options.DetectTotalMemory {
		totalMemoryMb, err := sampling.DetectTotalMemoryMb(ctx)
		if err != nil {
			logger.Warn("Failed to detect total memory, keeping configured value", zap.Error(err),
				zap.Float64("TotalMemoryMb", config.TotalMemoryMb))
		} else {
			config.TotalMemoryMb = totalMemoryMb
		}
	}

	if options.Config != "" {
		settings, err := control.LoadSettingsFile(options.Config)
		if err != nil {
			return config, err
		}
		config, warnings, err = settings.ApplyTo(config)
		recordWarnings(logger, feed, options.Config, warnings)
		if err != nil {
			return config, errors.WithMessagef(err, "apply settings from '%s'", options.Config)
		}
	}

	return config, nil
}

func hostReport(ctx context.Context, logger *zap.Logger, machineId string) reports.Report {
	report, err := general.NewHostStatusReport(ctx, machineId, options.ResolvePublic)
	if err != nil {
		logger.Warn("Failed to build host report, notifications go out without it", zap.Error(err))
		return nil
	}
	return report
}

func (a *agent) buildNotifier(hostReport reports.Report) (notify.Notifier, error) {
	notifiers := make([]notify.Notifier, 0, len(options.Notifiers))

	for _, name := range options.Notifiers {
		switch name {
		case "smtp":
			smtpNotifier, err := notify.NewSmtpNotifier(a.logger, &notify.SmtpConfig{
				Host:     options.SmtpHost,
				Port:     options.SmtpPort,
				Username: options.SmtpUsername,
				Password: options.SmtpPassword,
				From:     options.SmtpFrom,
				Timeout:  options.SmtpTimeout,
			})
			if err != nil {
				return nil, errors.WithMessage(err, "new smtp notifier")
			}
			notifiers = append(notifiers, smtpNotifier)

		case "webhook":
			restfulClient, err := client.NewRestfulClient(context.Background(), a.logger,
				&client.ApiConfig{Url: options.WebhookUrl})
			if err != nil {
				return nil, errors.WithMessage(err, "new webhook client")
			}
			a.closers = append(a.closers, restfulClient.AbortAll)
			notifiers = append(notifiers, notify.NewWebhookNotifier(a.logger, restfulClient, hostReport))

		case "nats":
			natsNotifier, err := notify.NewNatsNotifier(a.logger, &notify.NatsConfig{
				Url:     options.NatsUrl,
				Subject: options.NatsSubject,
			}, hostReport)
			if err != nil {
				return nil, errors.WithMessage(err, "new nats notifier")
			}
			a.closers = append(a.closers, natsNotifier.Close)
			notifiers = append(notifiers, natsNotifier)

		case "log":
			notifiers = append(notifiers, notify.NewLogNotifier(a.logger))

		default:
			return nil, errors.Errorf("unknown notifier '%s'", name)
		}
	}

	if len(notifiers) == 1 {
		return notifiers[0], nil
	}
	return notify.NewMulti(notifiers...), nil
}

func newAgent(ctx context.Context, logger *zap.Logger) (*agent, error) {
	a := &agent{logger: logger}

	feed, err := logging.OpenFeed(logger, options.AuditLog, logging.DefaultHistorySize)
	if err != nil {
		return nil, err
	}
	a.feed = feed
	a.closers = append(a.closers, func() { _ = feed.Close() })

	monitorConfig, err := monitorConfigFromOptions(ctx, logger, feed)
	if err != nil {
		a.shutdown()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	agentMetrics := metrics.NewMetrics(registry)

	machineId := host.MachineIdOrHostname()
	hostname, err := os.Hostname()
	if err != nil {
		hostname = machineId
	}
	report := hostReport(ctx, logger, machineId)

	notifier, err := a.buildNotifier(report)
	if err != nil {
		a.shutdown()
		return nil, err
	}

	dispatcher := alerting.NewDispatcher(logger, feed, notifier, agentMetrics,
		alerting.HostIdentity{Hostname: hostname, MachineId: machineId})

	var handler detection.EventHandler = dispatcher
	if options.AsyncDispatch {
		a.pipeline = operations.NewPipeline(context.Background(), logger, dispatcher, options.DispatchQueue)
		if err := a.pipeline.Start(); err != nil {
			a.shutdown()
			return nil, errors.WithMessage(err, "start dispatch pipeline")
		}
		handler = a.pipeline
	}

	querier := sampling.NewPsutilQuerier(logger)
	adapter := sampling.NewAdapter(logger, querier, func(processName string, err error) {
		agentMetrics.ObserveSampleError()
		feed.Recordf("Error reading memory usage: %s", err)
	})

	a.controller = detection.NewController(logger, feed, adapter, handler, detection.ControllerOptions{
		Metrics: agentMetrics,
	})

	a.plane, err = control.NewPlane(logger, feed, a.controller, &control.PlaneConfig{
		MonitorConfig: monitorConfig,
		SettingsPath:  options.Config,
		Inspector:     postdetection.NewInspector(machineId, querier),
	})
	if err != nil {
		a.shutdown()
		return nil, errors.WithMessage(err, "new control plane")
	}

	if options.Listen != "" {
		a.server = &http.Server{
			Addr:              options.Listen,
			Handler:           control.NewHandler(logger, a.plane, registry, version).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

func (a *agent) run(ctx context.Context) error {
	if !options.NoAutostart {
		if _, err := a.plane.Start(); err != nil {
			return errors.WithMessage(err, "start monitoring")
		}
	}

	serverErrors := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.logger.Info("Serve control api", zap.String("Address", a.server.Addr))
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrors <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return errors.WithMessage(err, "serve control api")
	}
}

func (a *agent) shutdown() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down control api", zap.Error(err))
		}
		cancel()
	}

	if a.plane != nil {
		if err := a.plane.Stop(); err != nil && err != control.ErrNotRunning {
			a.logger.Warn("Failed to stop monitoring", zap.Error(err))
		}
	}
	if a.controller != nil {
		a.controller.Shutdown()
	}

	if a.pipeline != nil {
		_ = a.pipeline.Stop()
		a.pipeline.WaitUntilCompletion()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
