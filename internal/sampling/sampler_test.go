package sampling

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type mockQuerier struct {
	queryFn func(ctx context.Context, processName string) (RawSample, error)
}

func (m *mockQuerier) Query(ctx context.Context, processName string) (RawSample, error) {
	return m.queryFn(ctx, processName)
}

func TestAdapterConvertsBytesToMegabytes(t *testing.T) {
	querier := &mockQuerier{queryFn: func(ctx context.Context, processName string) (RawSample, error) {
		if processName != "AutomationDesk.exe" {
			t.Fatalf("unexpected process name %q", processName)
		}
		return RawSample{Found: true, VirtualBytes: 2048 * 1024 * 1024, ResidentBytes: 256 * 1024 * 1024}, nil
	}}

	sample := NewAdapter(zaptest.NewLogger(t), querier, nil).Sample(context.Background(), "AutomationDesk.exe")
	if !sample.Found || sample.VirtualMb != 2048 || sample.ResidentMb != 256 {
		t.Fatalf("unexpected sample %+v", sample)
	}
}

func TestAdapterNotFound(t *testing.T) {
	querier := &mockQuerier{queryFn: func(ctx context.Context, processName string) (RawSample, error) {
		return RawSample{Found: false, VirtualBytes: 123, ResidentBytes: 456}, nil
	}}

	sample := NewAdapter(zaptest.NewLogger(t), querier, nil).Sample(context.Background(), "x")
	if sample != (Sample{}) {
		t.Fatalf("expected zero sample got %+v", sample)
	}
}

func TestAdapterConvertsErrorsToNotFound(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	queryErr := errors.New("access denied")

	querier := &mockQuerier{queryFn: func(ctx context.Context, processName string) (RawSample, error) {
		return RawSample{Found: true, VirtualBytes: 1}, queryErr
	}}

	var reported error
	adapter := NewAdapter(zap.New(core), querier, func(processName string, err error) {
		reported = err
	})

	sample := adapter.Sample(context.Background(), "x")
	if sample != (Sample{}) {
		t.Fatalf("expected zero sample got %+v", sample)
	}
	if reported != queryErr {
		t.Fatalf("expected error to be reported, got %v", reported)
	}
	if logs.FilterMessage("Failed to sample process").Len() != 1 {
		t.Fatalf("expected a warning log, got %v", logs.All())
	}
}

func TestPsutilQuerierMissingProcess(t *testing.T) {
	querier := NewPsutilQuerier(zaptest.NewLogger(t))

	raw, err := querier.Query(context.Background(), "memwatch-no-such-process-4f1c2e")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Found {
		t.Fatalf("expected process not to be found")
	}
}

func TestDetectTotalMemoryMb(t *testing.T) {
	total, err := DetectTotalMemoryMb(context.Background())
	if err != nil {
		t.Skipf("memory stats unavailable: %v", err)
	}
	if total <= 0 {
		t.Fatalf("expected positive total memory got %v", total)
	}
}
