package gc

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/rcimmix/internal/allocator"
	gcerrors "github.com/orizon-lang/rcimmix/internal/errors"
	"github.com/orizon-lang/rcimmix/internal/runtime/vfs"
)

// Config holds the §6 configuration constants. HeapSize, BlockSize,
// LineSize, MediumObject and LargeObject are fixed once Create has run and a
// hot reload leaves them unchanged; EvacHeadroom, the two trigger thresholds
// and the three toggles are hot-reloaded on a running Runtime.
type Config struct {
	HeapSize     uintptr
	BlockSize    uintptr
	LineSize     uintptr
	MediumObject uintptr
	LargeObject  uintptr

	EvacHeadroom          int32 // atomic: reloadable
	EvacTriggerThreshold  atomicFloat
	CycleTriggerThreshold atomicFloat

	RCOnly          int32 // atomic bool: 0/1
	TraceOnly       int32
	ValgrindHooks   int32
}

// atomicFloat stores a float64 behind an atomic-friendly bit pattern so
// config hot reload never races a collection reading these thresholds.
type atomicFloat struct{ bits atomic.Uint64 }

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// DefaultConfig returns the §6 compile-time defaults.
func DefaultConfig() *Config {
	c := &Config{
		HeapSize:     DefaultHeapSize,
		BlockSize:    DefaultBlockSize,
		LineSize:     DefaultLineSize,
		MediumObject: DefaultLineSize,
		LargeObject:  DefaultLargeObject,
		EvacHeadroom: DefaultEvacHeadroom,
	}
	c.EvacTriggerThreshold.Store(DefaultEvacTriggerThreshold)
	c.CycleTriggerThreshold.Store(DefaultCycleTriggerThreshold)

	return c
}

// Validate checks BlockSize against the OS page size (§9 open question
// (a)): a portable implementation must require BLOCK_SIZE >= page size.
func (c *Config) Validate() error {
	if page := allocator.PageSize(); c.BlockSize < page {
		return gcerrors.BlockSizeTooSmall(c.BlockSize, page)
	}

	return nil
}

// LoadConfig reads an optional key=value override file (one assignment per
// line, '#' comments, blank lines ignored) layered over DefaultConfig. Only
// structural values (HeapSize/BlockSize/LineSize/LargeObject) and tuning values may be
// set; structural values are only honoured when there is no running
// Runtime yet (Create reads them once). It reads through vfs.NewOS(), the
// same FileSystem seam LoadConfigFS takes explicitly, so a host embedding
// this runtime can swap in vfs.NewMem() in tests without touching disk.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigFS(vfs.NewOS(), path)
}

// LoadConfigFS is LoadConfig over a caller-supplied vfs.FileSystem.
func LoadConfigFS(fsys vfs.FileSystem, path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, gcerrors.ConfigParseError(path, 0, err)
	}
	defer f.Close()

	if err := applyOverrides(cfg, f, path); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyOverrides(cfg *Config, f vfs.File, path string) error {
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return gcerrors.ConfigParseError(path, lineNo, fmt.Errorf("missing '=' in %q", line))
		}

		if err := setConfigValue(cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return gcerrors.ConfigParseError(path, lineNo, err)
		}
	}

	return scanner.Err()
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "HeapSize":
		return setUintptr(&cfg.HeapSize, value)
	case "BlockSize":
		return setUintptr(&cfg.BlockSize, value)
	case "LineSize":
		return setUintptr(&cfg.LineSize, value)
	case "LargeObject":
		return setUintptr(&cfg.LargeObject, value)
	case "EvacHeadroom":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		atomic.StoreInt32(&cfg.EvacHeadroom, int32(n))

		return nil
	case "EvacTriggerThreshold":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}

		cfg.EvacTriggerThreshold.Store(v)

		return nil
	case "CycleTriggerThreshold":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}

		cfg.CycleTriggerThreshold.Store(v)

		return nil
	case "RCOnly":
		return setAtomicBool(&cfg.RCOnly, value)
	case "TraceOnly":
		return setAtomicBool(&cfg.TraceOnly, value)
	case "ValgrindHooks":
		return setAtomicBool(&cfg.ValgrindHooks, value)
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
}

func setUintptr(dst *uintptr, value string) error {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return err
	}

	*dst = uintptr(n)

	return nil
}

func setAtomicBool(dst *int32, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}

	if b {
		atomic.StoreInt32(dst, 1)
	} else {
		atomic.StoreInt32(dst, 0)
	}

	return nil
}

// ConfigWatcher hot-reloads the tuning subset of Config whenever path
// changes on disk, using the teacher's fsnotify-backed VFS watcher rather
// than a hand-rolled poll loop.
type ConfigWatcher struct {
	watcher *vfs.FSNotifyWatcher
	fsys    vfs.FileSystem
	path    string
	cfg     *Config

	mu      sync.Mutex
	onError func(error)
}

// WatchConfig starts watching path and applies tuning overrides to cfg as
// they land, until Close is called. onError, if non-nil, receives parse or
// watcher errors; a malformed file never panics the mutator and never
// touches the immutable structural fields. Reloads read through vfs.NewOS();
// use WatchConfigFS to supply a different FileSystem.
func WatchConfig(path string, cfg *Config, onError func(error)) (*ConfigWatcher, error) {
	return WatchConfigFS(vfs.NewOS(), path, cfg, onError)
}

// WatchConfigFS is WatchConfig over a caller-supplied vfs.FileSystem.
func WatchConfigFS(fsys vfs.FileSystem, path string, cfg *Config, onError func(error)) (*ConfigWatcher, error) {
	w, err := vfs.NewFSWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(path); err != nil {
		w.Close()

		return nil, err
	}

	cw := &ConfigWatcher{watcher: w, fsys: fsys, path: path, cfg: cfg, onError: onError}

	go cw.loop()

	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	for {
		select {
		case ev, ok := <-cw.watcher.Events():
			if !ok {
				return
			}

			if ev.Op&(vfs.OpWrite|vfs.OpCreate) == 0 {
				continue
			}

			cw.reload()
		case err, ok := <-cw.watcher.Errors():
			if !ok {
				return
			}

			if cw.onError != nil {
				cw.onError(err)
			}
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	f, err := cw.fsys.Open(cw.path)
	if err != nil {
		if cw.onError != nil {
			cw.onError(err)
		}

		return
	}
	defer f.Close()

	// Reload only touches the tuning fields: HeapSize/BlockSize/LineSize/
	// LargeObject changes in the file are parsed but ignored once a Runtime exists,
	// since re-sizing a live heap reservation is out of scope. Stage into a
	// fresh Config (never a copy of cw.cfg itself, which would copy its live
	// atomic.Uint64 fields by value) seeded from the current tuning values,
	// then write each field back individually through its atomic setter.
	staged := DefaultConfig()
	staged.HeapSize, staged.BlockSize, staged.LineSize, staged.LargeObject =
		cw.cfg.HeapSize, cw.cfg.BlockSize, cw.cfg.LineSize, cw.cfg.LargeObject
	atomic.StoreInt32(&staged.EvacHeadroom, atomic.LoadInt32(&cw.cfg.EvacHeadroom))
	staged.EvacTriggerThreshold.Store(cw.cfg.EvacTriggerThreshold.Load())
	staged.CycleTriggerThreshold.Store(cw.cfg.CycleTriggerThreshold.Load())
	atomic.StoreInt32(&staged.RCOnly, atomic.LoadInt32(&cw.cfg.RCOnly))
	atomic.StoreInt32(&staged.TraceOnly, atomic.LoadInt32(&cw.cfg.TraceOnly))
	atomic.StoreInt32(&staged.ValgrindHooks, atomic.LoadInt32(&cw.cfg.ValgrindHooks))

	if err := applyOverrides(staged, f, cw.path); err != nil {
		if cw.onError != nil {
			cw.onError(err)
		}

		return
	}

	atomic.StoreInt32(&cw.cfg.EvacHeadroom, atomic.LoadInt32(&staged.EvacHeadroom))
	cw.cfg.EvacTriggerThreshold.Store(staged.EvacTriggerThreshold.Load())
	cw.cfg.CycleTriggerThreshold.Store(staged.CycleTriggerThreshold.Load())
	atomic.StoreInt32(&cw.cfg.RCOnly, atomic.LoadInt32(&staged.RCOnly))
	atomic.StoreInt32(&cw.cfg.TraceOnly, atomic.LoadInt32(&staged.TraceOnly))
	atomic.StoreInt32(&cw.cfg.ValgrindHooks, atomic.LoadInt32(&staged.ValgrindHooks))
}

// Close stops the watcher.
func (cw *ConfigWatcher) Close() error { return cw.watcher.Close() }

// NegotiateABI validates the host's declared ABI constraint against
// ABIVersion using semver, returning a StandardError on mismatch rather
// than leaving the layout contract as undefined behaviour (§6).
func NegotiateABI(hostConstraint string) error {
	constraint, err := semver.NewConstraint(hostConstraint)
	if err != nil {
		return gcerrors.NewStandardError(gcerrors.CategoryGC, "ABI_CONSTRAINT_INVALID", err.Error(), map[string]interface{}{
			"constraint": hostConstraint,
		})
	}

	runtimeVersion, err := semver.NewVersion(ABIVersion)
	if err != nil {
		return gcerrors.NewStandardError(gcerrors.CategoryGC, "ABI_VERSION_INVALID", err.Error(), map[string]interface{}{
			"version": ABIVersion,
		})
	}

	if !constraint.Check(runtimeVersion) {
		return gcerrors.ABIMismatch(hostConstraint, ABIVersion)
	}

	return nil
}
