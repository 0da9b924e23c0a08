package xerrors

import (
	"errors"
	"io/fs"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

// stackContains checks if any frame in pcs belongs to a function matching substr.
func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

// New / Newf

func TestNew_MessageAndStack(t *testing.T) {
	err := New("something broke")
	if err.Error() != "something broke" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New error should expose StackPCs")
	}
	if !stackContains(hs.StackPCs(), "TestNew_MessageAndStack") {
		t.Fatal("stack should start at the caller")
	}
	if stackContains(hs.StackPCs(), "xerrors.stack") {
		t.Fatal("stack should not include the capture helper")
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	err := Newf("invalid port %d for %s", 99999, "server")
	if want := "invalid port 99999 for server"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

// Wrap / Wrapf

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	err := Wrap(Wrapf(errSentinel, "read %s", "a.html"), "handler")

	if want := "handler: read a.html: sentinel"; err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should see the sentinel through wraps")
	}
}

func TestWrap_RecordsCallerPC(t *testing.T) {
	err := Wrap(fs.ErrNotExist, "open")

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) {
		t.Fatal("Wrap should expose PC")
	}
	fn := runtime.FuncForPC(hp.PC())
	if fn == nil || !strings.Contains(fn.Name(), "TestWrap_RecordsCallerPC") {
		t.Fatalf("PC should point at the caller, got %v", fn)
	}
}

// WithStack / EnsureTrace

func TestWithStack_Nil(t *testing.T) {
	if WithStack(nil) != nil || EnsureTrace(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestEnsureTrace_AddsOnce(t *testing.T) {
	first := EnsureTrace(errSentinel)
	if first == errSentinel {
		t.Fatal("EnsureTrace should attach a stack to a bare error")
	}
	if again := EnsureTrace(first); again != first {
		t.Fatal("EnsureTrace should not re-wrap an error that already has a stack")
	}
	wrapped := Wrap(first, "outer")
	if again := EnsureTrace(wrapped); again != wrapped {
		t.Fatal("EnsureTrace should find a stack deeper in the chain")
	}
}
