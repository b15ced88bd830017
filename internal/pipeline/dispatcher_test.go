package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/meishihq/meishi/internal/platform"
)

type recordingRunner struct {
	mu      sync.Mutex
	updates []platform.Update
	block   chan struct{}
	started chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, update platform.Update) Outcome {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.updates = append(r.updates, update)
	r.mu.Unlock()
	return Outcome{Kind: KindReplied}
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func testUpdate(id string) platform.Update {
	return platform.Update{
		Platform:       "telegram",
		UpdateID:       id,
		ConversationID: "chat-1",
		Payload:        platform.Payload{Kind: platform.PayloadText, Text: "hi"},
	}
}

func TestDispatcherRunsEnqueuedUpdate(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 2, QueueSize: 8})
	d.Start()
	defer func() {
		_ = d.Shutdown(context.Background())
	}()

	if !d.Enqueue(testUpdate("1")) {
		t.Fatal("enqueue rejected a fresh update")
	}
	waitFor(t, func() bool { return runner.count() == 1 })
}

func TestDispatcherDeduplicatesWithinWindow(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 1, QueueSize: 8, DedupWindow: time.Minute})
	d.Start()
	defer func() {
		_ = d.Shutdown(context.Background())
	}()

	if !d.Enqueue(testUpdate("42")) {
		t.Fatal("first enqueue rejected")
	}
	if d.Enqueue(testUpdate("42")) {
		t.Fatal("duplicate update was accepted")
	}
	if !d.Enqueue(testUpdate("43")) {
		t.Fatal("distinct update rejected")
	}
	waitFor(t, func() bool { return runner.count() == 2 })
}

func TestDispatcherDedupKeyIncludesPlatform(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 1, QueueSize: 8, DedupWindow: time.Minute})
	d.Start()
	defer func() {
		_ = d.Shutdown(context.Background())
	}()

	first := testUpdate("7")
	second := testUpdate("7")
	second.Platform = "line"
	if !d.Enqueue(first) || !d.Enqueue(second) {
		t.Fatal("same id on different platforms must both run")
	}
	waitFor(t, func() bool { return runner.count() == 2 })
}

func TestDispatcherEnqueueNeverBlocksWhenFull(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 1, QueueSize: 1})
	d.Start()

	// First update occupies the worker, second fills the queue.
	d.Enqueue(testUpdate("1"))
	<-runner.started
	d.Enqueue(testUpdate("2"))

	start := time.Now()
	accepted := d.Enqueue(testUpdate("3"))
	if accepted {
		t.Fatal("enqueue accepted an update past the queue bound")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("enqueue blocked for %v", elapsed)
	}

	close(runner.block)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDispatcherQueueFullDropDoesNotPoisonDedup(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 1, QueueSize: 1, DedupWindow: time.Minute})
	d.Start()

	d.Enqueue(testUpdate("1"))
	<-runner.started
	d.Enqueue(testUpdate("2"))
	if d.Enqueue(testUpdate("3")) {
		t.Fatal("enqueue accepted an update past the queue bound")
	}

	// The drop never ran update 3; a platform retry must get through
	// once the queue has room again.
	close(runner.block)
	waitFor(t, func() bool { return runner.count() == 2 })
	if !d.Enqueue(testUpdate("3")) {
		t.Fatal("retry of a dropped update was treated as a duplicate")
	}
	waitFor(t, func() bool { return runner.count() == 3 })

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestDispatcherShutdownDrainsWorkers(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 2, QueueSize: 8})
	d.Start()
	for i := 0; i < 5; i++ {
		d.Enqueue(testUpdate(string(rune('a' + i))))
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if runner.count() != 5 {
		t.Fatalf("expected 5 runs after drain, got %d", runner.count())
	}
}

func TestDispatcherShutdownHonorsContext(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{block: make(chan struct{})}
	d := NewDispatcher(nil, runner, DispatcherConfig{Workers: 1, QueueSize: 8})
	d.Start()
	d.Enqueue(testUpdate("stuck"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); err == nil {
		t.Fatal("expected shutdown to give up on a stuck worker")
	}
	close(runner.block)
}
