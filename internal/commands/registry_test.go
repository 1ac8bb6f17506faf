package commands

import (
	"context"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-wa-gateway/internal/wa"
)

func noopExec(context.Context, wa.Transport, *Invocation) error { return nil }

func pack(ds ...*Descriptor) Source {
	return SourceFunc(func() []*Descriptor { return ds })
}

func TestRegistry_LoadAndGet(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	d := &Descriptor{Pattern: "kick", Aliases: []string{"remove", "boot"}, Execute: noopExec}
	if n := r.Load(pack(d)); n != 1 {
		t.Fatalf("Load = %d, want 1", n)
	}

	got, ok := r.Get("kick")
	if !ok || got != d {
		t.Fatalf("Get(kick) = %v, %v", got, ok)
	}
	for _, alias := range []string{"remove", "boot"} {
		if byAlias, ok := r.Get(alias); !ok || byAlias != d {
			t.Errorf("Get(%s) did not resolve to the same descriptor", alias)
		}
	}
	if _, ok := r.Get("absent"); ok {
		t.Error("Get(absent) = true")
	}
}

func TestRegistry_SkipsInvalidDescriptors(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	n := r.Load(pack(
		&Descriptor{Pattern: "", Execute: noopExec},
		&Descriptor{Pattern: "noexec"},
		nil,
		&Descriptor{Pattern: "ok", Execute: noopExec},
	))
	if n != 1 {
		t.Fatalf("Load = %d, want 1", n)
	}
	if _, ok := r.Get("noexec"); ok {
		t.Error("descriptor without Execute was registered")
	}
	if _, ok := r.Get("ok"); !ok {
		t.Error("valid descriptor missing")
	}
}

func TestRegistry_ReloadReplacesSet(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Load(pack(&Descriptor{Pattern: "old", Execute: noopExec}))
	if r.Version() != 1 {
		t.Fatalf("version = %d", r.Version())
	}

	r.Load(pack(&Descriptor{Pattern: "new", Execute: noopExec}))
	if _, ok := r.Get("old"); ok {
		t.Error("stale command survived reload")
	}
	if _, ok := r.Get("new"); !ok {
		t.Error("new command missing after reload")
	}
	if r.Version() != 2 {
		t.Errorf("version = %d, want 2", r.Version())
	}
}

func TestRegistry_PatternsSorted(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Load(pack(
		&Descriptor{Pattern: "tagall", Execute: noopExec},
		&Descriptor{Pattern: "demote", Aliases: []string{"unadmin"}, Execute: noopExec},
		&Descriptor{Pattern: "promote", Execute: noopExec},
	))

	want := []string{"demote", "promote", "tagall"}
	got := r.Patterns()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Patterns() = %v, want %v", got, want)
	}

	// Mutating the returned slice must not leak into the snapshot.
	got[0] = "mutated"
	if r.Patterns()[0] != "demote" {
		t.Error("Patterns() returned the internal slice")
	}
}

func TestRegistry_ConcurrentGetDuringLoad(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Load(pack(&Descriptor{Pattern: "ping", Execute: noopExec}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			r.Load(pack(
				&Descriptor{Pattern: "ping", Execute: noopExec},
				&Descriptor{Pattern: "info", Execute: noopExec},
			))
		}
	}()
	for i := 0; i < 1000; i++ {
		// Every observed snapshot must contain ping; a lookup mid-reload
		// must never see a half-built index.
		if _, ok := r.Get("ping"); !ok {
			t.Fatal("lookup observed a partial registry")
		}
	}
	<-done
}
