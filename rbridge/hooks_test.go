// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingHook captures one DispatchInfo/CallStatistics pair per dispatch.
type recordingHook struct {
	mu    sync.Mutex
	infos []DispatchInfo
	stats []CallStatistics
	errs  []error
}

type recordingToken struct{ seq int }

func (h *recordingHook) OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.infos = append(h.infos, info)
	return ctx, &recordingToken{seq: len(h.infos)}
}

func (h *recordingHook) OnDispatchEnd(_ context.Context, token HookToken, _ DispatchInfo, stats *CallStatistics, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := token.(*recordingToken); !ok {
		return
	}
	h.stats = append(h.stats, *stats)
	h.errs = append(h.errs, err)
}

func TestDispatchHookObservesQueuedCall(t *testing.T) {
	hook := &recordingHook{}
	slow := RuntimeFunc(func(_ context.Context, source string) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return source, nil
	})
	d := startDispatcher(t, slow, WithName("hooked"), WithDispatchHook(hook))

	res := d.Submit(context.Background(), Payload{Source: "observe me", Expect: KindString})
	if err := res.AsError(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.infos) != 1 || len(hook.stats) != 1 {
		t.Fatalf("hook saw %d starts / %d ends, want 1 / 1", len(hook.infos), len(hook.stats))
	}
	info := hook.infos[0]
	if info.Name != "hooked" {
		t.Errorf("info.Name = %q, want %q", info.Name, "hooked")
	}
	if info.Origin != DispatchQueued {
		t.Errorf("info.Origin = %q, want %q", info.Origin, DispatchQueued)
	}
	if info.RequestID == "" {
		t.Error("info.RequestID empty")
	}
	if info.SourceLen != len("observe me") {
		t.Errorf("info.SourceLen = %d, want %d", info.SourceLen, len("observe me"))
	}
	stats := hook.stats[0]
	if stats.ExecDuration <= 0 {
		t.Error("stats.ExecDuration not measured")
	}
	if stats.ResultKind != KindString || stats.ResultLen != 1 {
		t.Errorf("stats result = %s/%d, want string/1", stats.ResultKind, stats.ResultLen)
	}
	if hook.errs[0] != nil {
		t.Errorf("hook err = %v, want nil", hook.errs[0])
	}
}

func TestDispatchHookSeesDirectOriginAndErrors(t *testing.T) {
	hook := &recordingHook{}
	rt := RuntimeFunc(func(_ context.Context, _ string) (any, error) {
		return nil, EvalErrorf("deliberate failure")
	})
	d, err := New(rt, WithDispatchHook(hook))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	d.Submit(context.Background(), Payload{Source: "fail"})

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.infos) != 1 {
		t.Fatalf("hook saw %d dispatches, want 1", len(hook.infos))
	}
	if hook.infos[0].Origin != DispatchDirect {
		t.Errorf("origin = %q, want %q", hook.infos[0].Origin, DispatchDirect)
	}
	if hook.errs[0] == nil {
		t.Error("hook did not observe the evaluation error")
	}
}

// panickyHook fails in both callpoints; dispatch must survive it.
type panickyHook struct{}

func (panickyHook) OnDispatchStart(context.Context, DispatchInfo) (context.Context, HookToken) {
	panic("hook start")
}

func (panickyHook) OnDispatchEnd(context.Context, HookToken, DispatchInfo, *CallStatistics, error) {
	panic("hook end")
}

func TestPanickingHookIsolated(t *testing.T) {
	d := startDispatcher(t, &echoRuntime{}, WithDispatchHook(panickyHook{}))

	res := d.Submit(context.Background(), Payload{Source: "survives", Expect: KindString})
	if err := res.AsError(); err != nil {
		t.Fatalf("Submit with panicking hook failed: %v", err)
	}
	if res.Str != "survives" {
		t.Fatalf("got %q, want %q", res.Str, "survives")
	}
}
