// Package mlog provides logging with log levels and common attributes, over
// the standard library log/slog.
//
// Packages intended for use as a library take an *slog.Logger as parameter
// and wrap it in an mlog.Log for convenient logging, including levels below
// debug for tracing protocol exchanges.
//
// The log levels can be configured per originating package, e.g. smtpclient.
// The configuration is application-global, so each Log instance uses the same
// log levels.
package mlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var noctx = context.Background()

// Levels map from name as used in configuration to slog level. The trace
// levels are for protocol messages: traceauth includes lines with credentials
// and tracedata includes message data.
var Levels = map[string]slog.Level{
	"error":     LevelError,
	"warn":      LevelWarn,
	"info":      LevelInfo,
	"debug":     LevelDebug,
	"trace":     LevelTrace,
	"traceauth": LevelTraceauth,
	"tracedata": LevelTracedata,
}

const (
	LevelError     = slog.LevelError
	LevelWarn      = slog.LevelWarn
	LevelInfo      = slog.LevelInfo
	LevelDebug     = slog.LevelDebug
	LevelTrace     = slog.Level(-8)
	LevelTraceauth = slog.Level(-12)
	LevelTracedata = slog.Level(-16)
)

var levelNames = map[slog.Level]string{}

func init() {
	for s, l := range Levels {
		levelNames[l] = s
	}
}

// Config is the active per-package log levels, set with SetConfig. The empty
// package name is the fallback level.
var config atomic.Pointer[map[string]slog.Level]

func init() {
	c := map[string]slog.Level{"": LevelInfo}
	config.Store(&c)
}

// SetConfig atomically swaps the per-package log levels. Packages not in the
// map use the level for the empty package name.
func SetConfig(c map[string]slog.Level) {
	config.Store(&c)
}

// Log wraps an slog.Logger with convenience functions: variants that take an
// error, logging protocol traces, per-package log levels.
type Log struct {
	*slog.Logger
}

// New returns a Log for the given package. If elog is nil, a logger writing
// logfmt-like lines to stderr is used, respecting the levels from SetConfig.
func New(pkg string, elog *slog.Logger) Log {
	if elog == nil {
		elog = slog.New(&handler{w: os.Stderr})
	}
	return Log{elog}.WithPkg(pkg)
}

// WithPkg ensures pkg is present as attribute in logging. A pkg is added only
// once, the first time.
func (l Log) WithPkg(pkg string) Log {
	h := l.Logger.Handler()
	if ph, ok := h.(*handler); ok {
		if slices.Contains(ph.pkgs, pkg) {
			return l
		}
		nh := *ph
		nh.pkgs = append(slices.Clip(ph.pkgs), pkg)
		return Log{slog.New(&nh)}
	}
	return Log{slog.New(h.WithAttrs([]slog.Attr{slog.String("pkg", pkg)}))}
}

// With returns a Log with attrs added to all logging.
func (l Log) With(attrs ...slog.Attr) Log {
	return Log{slog.New(l.Logger.Handler().WithAttrs(attrs))}
}

// WithFunc returns a Log that evaluates fn for its attributes each time a
// message is logged, e.g. for time since a previous log message.
func (l Log) WithFunc(fn func() []slog.Attr) Log {
	return Log{slog.New(&funcHandler{l.Logger.Handler(), fn})}
}

func (l Log) Debug(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(noctx, LevelDebug, msg, attrs...)
}

func (l Log) Debugx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Logger.LogAttrs(noctx, LevelDebug, msg, attrs...)
}

func (l Log) Info(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(noctx, LevelInfo, msg, attrs...)
}

func (l Log) Infox(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Logger.LogAttrs(noctx, LevelInfo, msg, attrs...)
}

func (l Log) Warn(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(noctx, LevelWarn, msg, attrs...)
}

func (l Log) Warnx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Logger.LogAttrs(noctx, LevelWarn, msg, attrs...)
}

func (l Log) Error(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(noctx, LevelError, msg, attrs...)
}

func (l Log) Errorx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Logger.LogAttrs(noctx, LevelError, msg, attrs...)
}

// Check logs an error if err is not nil, with msg and attrs. Intended for
// errors that are good to know about, but don't influence program flow.
func (l Log) Check(err error, msg string, attrs ...slog.Attr) {
	if err != nil {
		l.Errorx(msg, err, attrs...)
	}
}

// Trace logs at one of the trace levels, typically raw protocol data with a
// prefix indicating the direction. The conversion of data to a string is only
// done when the level is active.
func (l Log) Trace(level slog.Level, prefix string, data []byte) {
	if l.Logger.Enabled(noctx, level) {
		l.Logger.LogAttrs(noctx, level, prefix+string(data))
	}
}

type funcHandler struct {
	h  slog.Handler
	fn func() []slog.Attr
}

func (h *funcHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *funcHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(h.fn()...)
	return h.h.Handle(ctx, r)
}

func (h *funcHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &funcHandler{h.h.WithAttrs(attrs), h.fn}
}

func (h *funcHandler) WithGroup(name string) slog.Handler {
	return &funcHandler{h.h.WithGroup(name), h.fn}
}

// handler writes logfmt-like lines, with the log level under "l" and the
// message under "m", and consults the SetConfig levels per package.
type handler struct {
	attrs []slog.Attr
	group string
	pkgs  []string
	w     *os.File
}

var writeMutex sync.Mutex

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	c := *config.Load()
	for i := len(h.pkgs) - 1; i >= 0; i-- {
		if l, ok := c[h.pkgs[i]]; ok {
			return level >= l
		}
	}
	l, ok := c[""]
	if !ok {
		l = LevelInfo
	}
	return level >= l
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	name, ok := levelNames[r.Level]
	if !ok {
		name = strings.ToLower(r.Level.String())
	}
	fmt.Fprintf(&sb, "l=%s m=%s", name, logfmtValue(r.Message))
	for _, pkg := range h.pkgs {
		fmt.Fprintf(&sb, " pkg=%s", logfmtValue(pkg))
	}
	for _, a := range h.attrs {
		writeAttr(&sb, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.group, a)
		return true
	})
	sb.WriteString("\n")

	writeMutex.Lock()
	defer writeMutex.Unlock()
	_, err := h.w.WriteString(sb.String())
	return err
}

func writeAttr(sb *strings.Builder, group string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			if group != "" {
				group += "."
			}
			group += a.Key
		}
		for _, ga := range v.Group() {
			writeAttr(sb, group, ga)
		}
		return
	}
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(sb, " %s=%s", key, logfmtValue(v.String()))
}

func logfmtValue(s string) string {
	for _, c := range s {
		if c <= ' ' || c == '"' || c == '=' || c == '\\' || c >= 0x7f {
			return strconv.Quote(s)
		}
	}
	if s == "" {
		return `""`
	}
	return s
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.attrs = append(slices.Clip(h.attrs), attrs...)
	return &nh
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	if nh.group != "" {
		nh.group += "."
	}
	nh.group += name
	return &nh
}
