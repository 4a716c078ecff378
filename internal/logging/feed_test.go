package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

var auditLinePattern = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] (.*)$`)

func TestFeedRecordFormat(t *testing.T) {
	var out bytes.Buffer
	feed := NewFeed(zaptest.NewLogger(t), &out, 10)

	feed.Record("Started Monitoring AutomationDesk.exe...")
	feed.Recordf("Memory: %.2f MB (%.2f%%) | Working Set: %.2f MB", 2048.0, 50.0, 256.0)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines got %d: %q", len(lines), out.String())
	}

	expected := []string{
		"Started Monitoring AutomationDesk.exe...",
		"Memory: 2048.00 MB (50.00%) | Working Set: 256.00 MB",
	}
	for i, line := range lines {
		match := auditLinePattern.FindStringSubmatch(line)
		if match == nil {
			t.Fatalf("line %d does not match audit format: %q", i, line)
		}
		if match[1] != expected[i] {
			t.Fatalf("line %d: expected message %q got %q", i, expected[i], match[1])
		}
	}
}

func TestFeedRecordFlattensMultilineMessages(t *testing.T) {
	var out bytes.Buffer
	feed := NewFeed(zaptest.NewLogger(t), &out, 10)
	lines, unsubscribe := feed.Subscribe(4)
	defer unsubscribe()

	feed.Recordf("Error sending email alert: %s", "1 error occurred:\n\t* notifier 'smtp': connection refused\n\n")

	written := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(written) != 1 {
		t.Fatalf("expected 1 line got %d: %q", len(written), out.String())
	}

	expected := "Error sending email alert: 1 error occurred: * notifier 'smtp': connection refused"
	match := auditLinePattern.FindStringSubmatch(written[0])
	if match == nil || match[1] != expected {
		t.Fatalf("expected message %q got %q", expected, written[0])
	}

	if history := feed.History(); len(history) != 1 || history[0] != written[0] {
		t.Fatalf("unexpected history %q", history)
	}
	if line := <-lines; line != written[0] {
		t.Fatalf("unexpected subscriber line %q", line)
	}
}

func TestFeedHistoryIsBounded(t *testing.T) {
	feed := NewFeed(zaptest.NewLogger(t), nil, 3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		feed.Record(msg)
	}

	history := feed.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 history lines got %d", len(history))
	}
	for i, suffix := range []string{"] c", "] d", "] e"} {
		if !strings.HasSuffix(history[i], suffix) {
			t.Fatalf("history[%d] = %q, expected suffix %q", i, history[i], suffix)
		}
	}
}

func TestFeedSubscribe(t *testing.T) {
	feed := NewFeed(zaptest.NewLogger(t), nil, 10)
	lines, unsubscribe := feed.Subscribe(4)

	feed.Record("hello")
	line := <-lines
	if !strings.HasSuffix(line, "] hello") {
		t.Fatalf("unexpected line %q", line)
	}

	unsubscribe()
	unsubscribe() // Idempotent.
	if _, ok := <-lines; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}

	feed.Record("after") // Must not panic on a removed subscriber.
}

func TestFeedSlowSubscriberDropsLines(t *testing.T) {
	feed := NewFeed(zaptest.NewLogger(t), nil, 10)
	lines, unsubscribe := feed.Subscribe(1)
	defer unsubscribe()

	feed.Record("first")
	feed.Record("second") // Buffer full, dropped.

	if line := <-lines; !strings.HasSuffix(line, "] first") {
		t.Fatalf("unexpected line %q", line)
	}
	select {
	case line := <-lines:
		t.Fatalf("expected dropped line, got %q", line)
	default:
	}
}

func TestOpenFeedAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory_monitor.log")

	feed, err := OpenFeed(zaptest.NewLogger(t), path, 10)
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	feed.Record("one")
	if err := feed.Close(); err != nil {
		t.Fatalf("close feed: %v", err)
	}

	feed, err = OpenFeed(zaptest.NewLogger(t), path, 10)
	if err != nil {
		t.Fatalf("reopen feed: %v", err)
	}
	feed.Record("two")
	if err := feed.Close(); err != nil {
		t.Fatalf("close feed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "] one") || !strings.HasSuffix(lines[1], "] two") {
		t.Fatalf("unexpected file content %q", string(data))
	}
}
