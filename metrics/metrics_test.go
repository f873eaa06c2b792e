package metrics_test

import (
	"sync"
	"testing"

	"github.com/kdevan/gchat-bridge/metrics"
)

func TestIncrements(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncRPCTotal()
	m.IncRPCTotal()
	m.IncRPCSuccess()
	m.IncRPCFailed()
	m.AddCursorPage()
	m.IncMarkReadDispatched()
	m.WSClientConnected()
	m.WSClientConnected()
	m.WSClientDisconnected()

	snap := m.Snapshot()
	if snap.RPCTotal != 2 {
		t.Errorf("RPCTotal: got %d, want 2", snap.RPCTotal)
	}
	if snap.RPCSuccess != 1 {
		t.Errorf("RPCSuccess: got %d, want 1", snap.RPCSuccess)
	}
	if snap.RPCFailed != 1 {
		t.Errorf("RPCFailed: got %d, want 1", snap.RPCFailed)
	}
	if snap.CursorPagesFetched != 1 {
		t.Errorf("CursorPagesFetched: got %d, want 1", snap.CursorPagesFetched)
	}
	if snap.WSClientsActive != 1 {
		t.Errorf("WSClientsActive: got %d, want 1", snap.WSClientsActive)
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := metrics.NewMetrics()
	const goroutines = 1000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			m.IncRPCTotal()
			m.IncRPCSuccess()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	if snap.RPCTotal != goroutines {
		t.Errorf("RPCTotal: got %d, want %d", snap.RPCTotal, goroutines)
	}
	if snap.RPCSuccess != goroutines {
		t.Errorf("RPCSuccess: got %d, want %d", snap.RPCSuccess, goroutines)
	}
}
