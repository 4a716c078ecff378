package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	internalErrors "github.com/memlab/memwatch/internal/errors"
	"github.com/memlab/memwatch/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultHistorySize    = 500
	defaultSubscriberSize = 64
)

// Feed is the operator-facing audit trail. Every record is a single line of the
// form "[YYYY-MM-DD HH:MM:SS] <message>", appended to an optional writer, kept in a
// bounded history and fanned out to subscribers.
type Feed struct {
	logger *zap.Logger
	audit  *zap.Logger
	writer *feedWriter
	closer io.Closer
}

func encodeAuditTime(t time.Time, encoder zapcore.PrimitiveArrayEncoder) {
	encoder.AppendString(types.FormatAuditTime(t))
}

func auditEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "message",
		EncodeTime:       encodeAuditTime,
		ConsoleSeparator: " ",
		LineEnding:       zapcore.DefaultLineEnding,
	}
}

func NewFeed(rootLogger *zap.Logger, out io.Writer, historySize int) *Feed {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	writer := &feedWriter{
		out:         out,
		historySize: historySize,
		history:     make([]string, 0, historySize),
		subscribers: make(map[int]chan string),
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(auditEncoderConfig()), zapcore.AddSync(writer),
		zapcore.DebugLevel)

	return &Feed{
		logger: rootLogger.Named("audit-feed"),
		audit:  zap.New(core),
		writer: writer,
	}
}

// OpenFeed creates a feed that appends to the file at path. An empty path keeps
// the feed in memory only.
func OpenFeed(rootLogger *zap.Logger, path string, historySize int) (*Feed, error) {
	if path == "" {
		return NewFeed(rootLogger, nil, historySize), nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, internalErrors.WrappedErrOpenAuditLog(err)
	}

	feed := NewFeed(rootLogger, file, historySize)
	feed.closer = file
	return feed, nil
}

func (f *Feed) Record(message string) {
	f.audit.Info(singleLine(message))
}

func (f *Feed) Recordf(format string, args ...interface{}) {
	f.audit.Info(singleLine(fmt.Sprintf(format, args...)))
}

// singleLine folds a multi-line message onto one line, words separated by single spaces.
func singleLine(message string) string {
	if !strings.ContainsAny(message, "\r\n") {
		return message
	}
	return strings.Join(strings.Fields(message), " ")
}

// Subscribe returns a channel receiving every subsequent line. Lines are dropped for
// a subscriber whose buffer is full. The returned func unsubscribes.
func (f *Feed) Subscribe(buffer int) (<-chan string, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberSize
	}
	return f.writer.subscribe(buffer)
}

func (f *Feed) History() []string {
	return f.writer.snapshot()
}

func (f *Feed) Close() error {
	f.writer.closeSubscribers()
	if f.closer == nil {
		return nil
	}
	if err := f.closer.Close(); err != nil {
		f.logger.Error("Failed to close audit log", zap.Error(err))
		return err
	}
	return nil
}

type feedWriter struct {
	lock        sync.Mutex
	out         io.Writer
	historySize int
	history     []string
	subscribers map[int]chan string
	nextId      int
}

func (w *feedWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.out != nil {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
	}

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.appendHistory(line)
		for _, subscriber := range w.subscribers {
			select {
			case subscriber <- line:
			default: // Slow subscriber, drop.
			}
		}
	}

	return len(p), nil
}

func (w *feedWriter) Sync() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if syncer, ok := w.out.(zapcore.WriteSyncer); ok {
		return syncer.Sync()
	}
	return nil
}

func (w *feedWriter) appendHistory(line string) {
	if len(w.history) == w.historySize {
		copy(w.history, w.history[1:])
		w.history = w.history[:len(w.history)-1]
	}
	w.history = append(w.history, line)
}

func (w *feedWriter) subscribe(buffer int) (<-chan string, func()) {
	w.lock.Lock()
	defer w.lock.Unlock()

	id := w.nextId
	w.nextId++

	subscriber := make(chan string, buffer)
	w.subscribers[id] = subscriber

	var once sync.Once
	return subscriber, func() {
		once.Do(func() {
			w.lock.Lock()
			defer w.lock.Unlock()

			if _, exists := w.subscribers[id]; exists {
				delete(w.subscribers, id)
				close(subscriber)
			}
		})
	}
}

func (w *feedWriter) snapshot() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	history := make([]string, len(w.history))
	copy(history, w.history)
	return history
}

func (w *feedWriter) closeSubscribers() {
	w.lock.Lock()
	defer w.lock.Unlock()

	for id, subscriber := range w.subscribers {
		delete(w.subscribers, id)
		close(subscriber)
	}
}
