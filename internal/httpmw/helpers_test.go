package httpmw

import (
	"context"
	"sync"

	"github.com/keithlinneman/sitestore/internal/log"
)

type logCall struct {
	level string
	msg   string
	err   error
	kv    []any
}

// recLogger records every call and returns itself from With, keeping the
// With arguments so tests can look at request-scoped fields.
type recLogger struct {
	mu    sync.Mutex
	calls []logCall
	withs [][]any
}

func (l *recLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *recLogger) add(c logCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}

func (l *recLogger) Debug(_ context.Context, msg string, kv ...any) {
	l.add(logCall{level: "debug", msg: msg, kv: kv})
}
func (l *recLogger) Info(_ context.Context, msg string, kv ...any) {
	l.add(logCall{level: "info", msg: msg, kv: kv})
}
func (l *recLogger) Warn(_ context.Context, msg string, kv ...any) {
	l.add(logCall{level: "warn", msg: msg, kv: kv})
}
func (l *recLogger) Error(_ context.Context, err error, msg string, kv ...any) {
	l.add(logCall{level: "error", msg: msg, err: err, kv: kv})
}
func (l *recLogger) Sync() error { return nil }

func (l *recLogger) byLevel(level string) []logCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logCall
	for _, c := range l.calls {
		if c.level == level {
			out = append(out, c)
		}
	}
	return out
}

func (l *recLogger) withField(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, kv := range l.withs {
		if v, ok := field(kv, key); ok {
			return v, true
		}
	}
	return nil, false
}

func field(kv []any, key string) (any, bool) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return kv[i+1], true
		}
	}
	return nil, false
}
