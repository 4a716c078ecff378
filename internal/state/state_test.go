package state

import (
	"sync"
	"testing"

	"gopkg.in/guregu/null.v3"
)

func TestStoreStartsEmpty(t *testing.T) {
	snapshot := NewStore().Load()
	if snapshot.Running || snapshot.LastSample != nil || snapshot.Watermark.Valid {
		t.Fatalf("expected empty snapshot got %+v", snapshot)
	}
}

func TestStorePublishReplacesSnapshot(t *testing.T) {
	store := NewStore()
	store.Publish(Snapshot{Running: true, Process: "a.exe", Watermark: null.FloatFrom(72)})
	store.Publish(Snapshot{Running: false, Process: "a.exe"})

	snapshot := store.Load()
	if snapshot.Running || snapshot.Watermark.Valid {
		t.Fatalf("expected latest snapshot got %+v", snapshot)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore()

	var waitGroup sync.WaitGroup
	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		for i := 0; i < 1000; i++ {
			store.Publish(Snapshot{ThresholdPercent: float64(i)})
		}
	}()
	go func() {
		defer waitGroup.Done()
		for i := 0; i < 1000; i++ {
			_ = store.Load()
		}
	}()
	waitGroup.Wait()

	if store.Load().ThresholdPercent != 999 {
		t.Fatalf("expected last published snapshot")
	}
}
