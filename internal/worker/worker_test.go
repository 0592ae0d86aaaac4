package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockReconciler struct {
	callCount atomic.Int32
	err       error
}

func (m *mockReconciler) ReconcileAll(_ context.Context) (int, error) {
	m.callCount.Add(1)
	return 0, m.err
}

type mockExporter struct {
	callCount atomic.Int32
}

func (m *mockExporter) Export(_ context.Context) error {
	m.callCount.Add(1)
	return nil
}

func TestReconcileWorkerRunsAndShutdown(t *testing.T) {
	mock := &mockReconciler{}
	w := NewReconcileWorker(mock, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	// Should have run at least the initial pass + some ticks
	if got := mock.callCount.Load(); got < 2 {
		t.Errorf("call count = %d, want >= 2", got)
	}
}

func TestReconcileWorkerContinuesAfterError(t *testing.T) {
	mock := &mockReconciler{err: errors.New("db down")}
	w := NewReconcileWorker(mock, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 2 {
		t.Errorf("call count = %d, want >= 2", got)
	}
}

func TestExportWorkerRunsAndShutdown(t *testing.T) {
	mock := &mockExporter{}
	w := NewExportWorker(mock, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 1 {
		t.Errorf("call count = %d, want >= 1", got)
	}
}
