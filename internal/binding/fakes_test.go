package binding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/sysbind/internal/bootup"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type write struct {
	path  string
	value string
}

// fakeIO is an in-memory control file tree that records every call.
type fakeIO struct {
	mu        sync.Mutex
	files     map[string]string
	failWrite map[string]bool
	failRead  map[string]bool
	// coerce maps a path to the value its driver stores whatever is written.
	coerce map[string]string
	writes []write
	reads  []string
}

func newFakeIO(paths ...string) *fakeIO {
	f := &fakeIO{
		files:     make(map[string]string),
		failWrite: make(map[string]bool),
		failRead:  make(map[string]bool),
		coerce:    make(map[string]string),
	}
	for _, p := range paths {
		f.files[p] = "0"
	}
	return f
}

func (f *fakeIO) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *fakeIO) Write(_ context.Context, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{path: path, value: value})
	if f.failWrite[path] {
		return errors.New("permission denied")
	}
	if _, ok := f.files[path]; !ok {
		return errors.New("no such file")
	}
	if c, ok := f.coerce[path]; ok {
		value = c
	}
	f.files[path] = value
	return nil
}

func (f *fakeIO) ReadFirstLine(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, path)
	if f.failRead[path] {
		return "", errors.New("permission denied")
	}
	v, ok := f.files[path]
	if !ok {
		return "", errors.New("no such file")
	}
	return v, nil
}

func (f *fakeIO) set(path, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = value
}

func (f *fakeIO) recordedWrites() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

func (f *fakeIO) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

// fakeRecorder keeps entries keyed by identity, in first-insertion order.
type fakeRecorder struct {
	mu      sync.Mutex
	order   []string
	entries map[string]bootup.Entry
	calls   int
	err     error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: make(map[string]bootup.Entry)}
}

func (r *fakeRecorder) SetBootup(_ context.Context, e bootup.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return r.err
	}
	id := e.Category + "/" + e.Key
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = e
	return nil
}

func (r *fakeRecorder) all() []bootup.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bootup.Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

// fakeScheduler captures scheduled tasks so tests fire them explicitly.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// fire runs every task that has not been stopped.
func (s *fakeScheduler) fire() int {
	s.mu.Lock()
	tasks := append([]*fakeTimer(nil), s.tasks...)
	s.mu.Unlock()
	n := 0
	for _, t := range tasks {
		if !t.stopped {
			t.stopped = true
			t.f()
			n++
		}
	}
	return n
}

// goScheduler runs every task at once on its own goroutine.
type goScheduler struct {
	wg sync.WaitGroup
}

func (s *goScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
	return &fakeTimer{}
}

type fakeView struct {
	mu     sync.Mutex
	values []Value
}

func (v *fakeView) SetValue(val Value) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values = append(v.values, val)
}

func testDeps(fio *fakeIO, rec Recorder) Deps {
	return Deps{IO: fio, Registry: rec, Scheduler: &fakeScheduler{}, Logger: discardLogger}
}
