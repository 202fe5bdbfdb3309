// Package binding keeps a toggle or list setting in sync with one or more
// kernel control files.
//
// A Binding reads its representative file to initialise the displayed value,
// writes every change to its target file(s), and records successful writes
// in the bootup registry so they can be replayed after a restart. Failures
// never escape a Binding: an unsupported or misbehaving control file must
// not break the rest of the settings surface.
package binding

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/sysfs"
)

// DefaultReinitDelay is how long a binding waits before re-reading its file
// after a write.
const DefaultReinitDelay = 200 * time.Millisecond

// maxParallelWrites bounds concurrent writes in parallel fan-out mode.
const maxParallelWrites = 4

// Options configures a Binding. Zero values select the defaults, except
// Startup: a zero Options records nothing in the bootup registry, so callers
// wanting replay at boot set it explicitly. The manifest does so unless an
// entry says "startup: false".
type Options struct {
	Key             string
	Kind            Kind
	Category        string
	Path            string
	Paths           []string
	MultiFile       bool
	Startup         bool
	ValueChecked    string
	ValueNotChecked string
	Decode          DecodeMode
	// Choices restricts list values when non-empty.
	Choices        []string
	ShouldReinit   bool
	ReinitDelay    time.Duration
	ParallelFanOut bool
}

// Recorder persists bootup entries. Implemented by bootup.Registry.
type Recorder interface {
	SetBootup(ctx context.Context, e bootup.Entry) error
}

// View is the UI element a binding drives.
type View interface {
	SetValue(v Value)
}

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. Abstracted for testability.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Deps are the collaborators shared by every binding on a screen.
type Deps struct {
	IO        sysfs.ReadWriter
	Registry  Recorder
	Scheduler Scheduler
	Logger    *slog.Logger
}

// Binding associates one setting with its backing control file(s).
type Binding struct {
	key     string
	kind    Kind
	choices []string

	io        sysfs.ReadWriter
	registry  Recorder
	scheduler Scheduler
	logger    *slog.Logger

	// lifetime is cancelled by Close so pending reinits never touch a
	// torn-down setting.
	lifetime context.Context
	cancel   context.CancelFunc

	mu           sync.Mutex
	category     string
	path         string
	paths        []string
	multiFile    bool
	startup      bool
	codec        Codec
	shouldReinit bool
	reinitDelay  time.Duration
	parallel     bool
	value        Value
	hasValue     bool
	view         View
	reinit       Timer
	closed       bool
}

// New builds a Binding, resolving its paths once against deps.IO.
func New(opts Options, deps Deps) *Binding {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("binding", opts.Key)

	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = realScheduler{}
	}

	kind := opts.Kind
	if kind == "" {
		kind = KindToggle
	}

	category := opts.Category
	if category == "" {
		logger.Warn("category is not set, defaulting", "category", bootup.DefaultCategory)
		category = bootup.DefaultCategory
	}

	delay := opts.ReinitDelay
	if delay <= 0 {
		delay = DefaultReinitDelay
	}

	var codec Codec = ListCodec{}
	if kind == KindToggle {
		codec = NewBoolCodec(opts.ValueChecked, opts.ValueNotChecked, opts.Decode)
	}

	path, paths := Resolve(deps.IO, opts.Path, opts.Paths, opts.MultiFile)
	if path == "" && len(paths) == 0 {
		logger.Debug("no usable control file, binding unsupported")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Binding{
		key:          opts.Key,
		kind:         kind,
		choices:      slices.Clone(opts.Choices),
		io:           deps.IO,
		registry:     deps.Registry,
		scheduler:    scheduler,
		logger:       logger,
		lifetime:     ctx,
		cancel:       cancel,
		category:     category,
		path:         path,
		paths:        paths,
		multiFile:    opts.MultiFile,
		startup:      opts.Startup,
		codec:        codec,
		shouldReinit: opts.ShouldReinit,
		reinitDelay:  delay,
		parallel:     opts.ParallelFanOut,
	}
}

func (b *Binding) Key() string { return b.key }
func (b *Binding) Kind() Kind { return b.kind }

// Choices returns the allowed list values, nil when unrestricted.
func (b *Binding) Choices() []string { return slices.Clone(b.choices) }

// Allows reports whether v is acceptable for this binding.
func (b *Binding) Allows(v Value) bool {
	if b.kind != KindList || len(b.choices) == 0 {
		return true
	}
	return slices.Contains(b.choices, v.Option)
}

func (b *Binding) Category() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.category
}

// Path returns the representative path, empty when unsupported.
func (b *Binding) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Paths returns the fan-out targets, nil unless multi-file is active.
func (b *Binding) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.paths)
}

// IsSupported reports whether the binding has any usable control file.
func (b *Binding) IsSupported() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supportedLocked()
}

func (b *Binding) supportedLocked() bool {
	return b.path != "" || len(b.paths) != 0
}

// Value returns the displayed value and whether one has been loaded.
func (b *Binding) Value() (Value, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.hasValue
}

// Attach connects the UI element whose value this binding drives.
func (b *Binding) Attach(v View) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.view = v
}

func (b *Binding) SetCategory(category string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if category == "" {
		category = bootup.DefaultCategory
	}
	b.category = category
}

// SetPath replaces the target with a single path. Ignored if the path does
// not resolve.
func (b *Binding) SetPath(path string) {
	resolved, _ := Resolve(b.io, path, nil, false)
	if resolved == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = resolved
	b.paths = nil
}

// SetPaths replaces the targets with a candidate list. Ignored if no
// candidate resolves.
func (b *Binding) SetPaths(paths []string) {
	b.mu.Lock()
	multi := b.multiFile
	b.mu.Unlock()

	resolved, list := Resolve(b.io, "", paths, multi)
	if resolved == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = resolved
	b.paths = list
}

func (b *Binding) SetMultiFile(multi bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.multiFile = multi
}

func (b *Binding) SetStartup(startup bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startup = startup
}

func (b *Binding) SetShouldReinit(reinit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shouldReinit = reinit
}

// InitValue reads the representative file and updates the displayed value.
// It returns the value and true when one was loaded; read failures are
// logged and leave the displayed value unchanged.
func (b *Binding) InitValue(ctx context.Context) (Value, bool) {
	b.mu.Lock()
	if b.closed || !b.supportedLocked() {
		b.mu.Unlock()
		return Value{}, false
	}
	path := b.path
	if path == "" {
		path = b.paths[0]
	}
	codec := b.codec
	b.mu.Unlock()

	raw, err := b.io.ReadFirstLine(ctx, path)
	if err != nil {
		b.logger.Warn("reading control file failed", "path", path, "error", err)
		return Value{}, false
	}
	v, ok := codec.Decode(raw)
	if !ok {
		b.logger.Debug("control file carries no value", "path", path)
		return Value{}, false
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Value{}, false
	}
	b.value, b.hasValue = v, true
	view := b.view
	b.mu.Unlock()

	if view != nil {
		view.SetValue(v)
	}
	return v, true
}

// TargetResult is the outcome of writing one control file.
type TargetResult struct {
	Path      string `json:"path"`
	BootupKey string `json:"bootup_key"`
	Error     string `json:"error,omitempty"`
	Recorded  bool   `json:"recorded"`
}

// WriteReport describes one WriteValue call.
type WriteReport struct {
	Encoded string         `json:"encoded"`
	Targets []TargetResult `json:"targets"`
}

// Failed counts targets whose write failed.
func (r WriteReport) Failed() int {
	n := 0
	for _, t := range r.Targets {
		if t.Error != "" {
			n++
		}
	}
	return n
}

type target struct {
	path      string
	bootupKey string
}

// WriteValue encodes v and writes it to every target. Each target is
// independent: a failed write is logged and skipped, never recorded, and
// never stops the remaining targets. Unsupported bindings do nothing, and so
// does a value of the wrong kind.
func (b *Binding) WriteValue(ctx context.Context, v Value) WriteReport {
	return b.write(ctx, v, false)
}

func (b *Binding) write(ctx context.Context, v Value, adopt bool) WriteReport {
	b.mu.Lock()
	if b.closed || !b.supportedLocked() {
		b.mu.Unlock()
		return WriteReport{}
	}
	if v.isList != (b.kind == KindList) {
		b.mu.Unlock()
		b.logger.Warn("ignoring value of the wrong kind", "kind", b.kind, "value", v.String())
		return WriteReport{}
	}
	encoded := b.codec.Encode(v)
	category, startup, parallel := b.category, b.startup, b.parallel
	var targets []target
	if b.multiFile && len(b.paths) > 0 {
		for i, p := range b.paths {
			targets = append(targets, target{path: p, bootupKey: b.key + strconv.Itoa(i)})
		}
	} else {
		targets = []target{{path: b.path, bootupKey: b.key}}
	}
	reinit := b.shouldReinit
	b.mu.Unlock()

	errs := b.writeTargets(ctx, targets, encoded, parallel)

	report := WriteReport{Encoded: encoded, Targets: make([]TargetResult, len(targets))}
	for i, t := range targets {
		res := TargetResult{Path: t.path, BootupKey: t.bootupKey}
		if errs[i] != nil {
			b.logger.Warn("writing control file failed", "path", t.path, "value", encoded, "error", errs[i])
			res.Error = errs[i].Error()
			report.Targets[i] = res
			continue
		}
		if startup && b.registry != nil {
			entry := bootup.Entry{
				Category: category,
				Key:      t.bootupKey,
				Path:     t.path,
				Value:    encoded,
				Enabled:  true,
			}
			if err := b.registry.SetBootup(ctx, entry); err != nil {
				b.logger.Warn("recording bootup entry failed", "category", category, "key", t.bootupKey, "error", err)
			} else {
				res.Recorded = true
			}
		}
		report.Targets[i] = res
	}

	// Adopt before scheduling so the reinit's read is the last word.
	if adopt {
		b.mu.Lock()
		if !b.closed {
			b.value, b.hasValue = v, true
		}
		b.mu.Unlock()
	}
	if reinit {
		b.scheduleReinit()
	}
	return report
}

// writeTargets writes encoded to each target and returns per-target errors
// in target order.
func (b *Binding) writeTargets(ctx context.Context, targets []target, encoded string, parallel bool) []error {
	errs := make([]error, len(targets))
	if !parallel || len(targets) < 2 {
		for i, t := range targets {
			errs[i] = b.io.Write(ctx, t.path, encoded)
		}
		return errs
	}

	// Goroutines never return an error: one target's failure must not
	// cancel its siblings.
	var g errgroup.Group
	g.SetLimit(maxParallelWrites)
	for i, t := range targets {
		g.Go(func() error {
			errs[i] = b.io.Write(ctx, t.path, encoded)
			return nil
		})
	}
	g.Wait()
	return errs
}

// scheduleReinit re-reads the file after the reinit delay, replacing any
// pending reinit.
func (b *Binding) scheduleReinit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.reinit != nil {
		b.reinit.Stop()
	}
	b.reinit = b.scheduler.AfterFunc(b.reinitDelay, func() {
		if b.lifetime.Err() != nil {
			return
		}
		b.InitValue(b.lifetime)
	})
}

// OnValueChanged is the change hook registered with the owning UI element.
// It writes v, adopts it as the displayed value, and reports the change as
// handled.
func (b *Binding) OnValueChanged(ctx context.Context, v Value) bool {
	b.Apply(ctx, v)
	return true
}

// Apply writes v and adopts it as the displayed value. Unsupported bindings
// and values of the wrong kind are ignored, leaving the displayed value as
// it was.
func (b *Binding) Apply(ctx context.Context, v Value) WriteReport {
	return b.write(ctx, v, true)
}

// Close cancels any pending reinit and detaches the view. The binding is
// inert afterwards.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.reinit != nil {
		b.reinit.Stop()
		b.reinit = nil
	}
	b.view = nil
	b.cancel()
}

// Info is a read-only snapshot of a binding.
type Info struct {
	Key       string   `json:"key"`
	Kind      Kind     `json:"kind"`
	Category  string   `json:"category"`
	Path      string   `json:"path"`
	Paths     []string `json:"paths,omitempty"`
	MultiFile bool     `json:"multifile"`
	Startup   bool     `json:"startup"`
	Supported bool     `json:"supported"`
	Choices   []string `json:"choices,omitempty"`
	Value     *string  `json:"value,omitempty"`
}

// Snapshot returns the binding's current configuration and value.
func (b *Binding) Snapshot() Info {
	b.mu.Lock()
	defer b.mu.Unlock()
	info := Info{
		Key:       b.key,
		Kind:      b.kind,
		Category:  b.category,
		Path:      b.path,
		Paths:     slices.Clone(b.paths),
		MultiFile: b.multiFile,
		Startup:   b.startup,
		Supported: b.supportedLocked(),
		Choices:   slices.Clone(b.choices),
	}
	if b.hasValue {
		s := b.value.String()
		info.Value = &s
	}
	return info
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s(%s)", b.key, b.kind)
}
