// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestChannelFIFO(t *testing.T) {
	c := NewChannel(nil)
	for _, src := range []string{"a", "b", "c"} {
		if err := c.Send(newRequest(Payload{Source: src}, src)); err != nil {
			t.Fatalf("Send(%q) failed: %v", src, err)
		}
	}
	if got := c.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for _, want := range []string{"a", "b", "c"} {
		req, err := c.Receive(-1)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		if req.payload.Source != want {
			t.Fatalf("Receive order: got %q, want %q", req.payload.Source, want)
		}
	}
}

func TestChannelTryReceiveEmpty(t *testing.T) {
	c := NewChannel(nil)
	if _, err := c.TryReceive(); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("TryReceive on empty: got %v, want ErrWouldBlock", err)
	}
}

func TestChannelBoundedReceiveTimesOut(t *testing.T) {
	c := NewChannel(nil)
	start := time.Now()
	_, err := c.Receive(30 * time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("bounded Receive: got %v, want ErrTimedOut", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("bounded Receive took %v, expected prompt expiry", elapsed)
	}
}

func TestChannelBlockedReceiverGetsLateSend(t *testing.T) {
	c := NewChannel(nil)
	got := make(chan *Request, 1)
	go func() {
		req, err := c.Receive(-1)
		if err != nil {
			return
		}
		got <- req
	}()

	time.Sleep(20 * time.Millisecond)
	if err := c.Send(newRequest(Payload{Source: "late"}, "late")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case req := <-got:
		if req.payload.Source != "late" {
			t.Fatalf("received %q, want %q", req.payload.Source, "late")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked receiver never woke for a late send")
	}
}

func TestChannelCloseWakesBlockedReceiver(t *testing.T) {
	c := NewChannel(nil)
	done := make(chan error, 1)
	go func() {
		_, err := c.Receive(-1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked Receive after Close: got %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not wake the blocked receiver")
	}
}

func TestChannelClosedButDrainable(t *testing.T) {
	c := NewChannel(nil)
	if err := c.Send(newRequest(Payload{Source: "x"}, "x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := c.Send(newRequest(Payload{Source: "y"}, "y")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	c.Close()

	if err := c.Send(newRequest(Payload{Source: "z"}, "z")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after Close: got %v, want ErrClosed", err)
	}

	for _, want := range []string{"x", "y"} {
		req, err := c.Receive(0)
		if err != nil {
			t.Fatalf("draining closed channel: %v", err)
		}
		if req.payload.Source != want {
			t.Fatalf("drained %q, want %q", req.payload.Source, want)
		}
	}
	if _, err := c.Receive(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("Receive on drained closed channel: got %v, want ErrClosed", err)
	}
}

func TestChannelNotifiesWakerOnSend(t *testing.T) {
	var notified atomic.Int32
	w := &FuncWaker{OnNotify: func() { notified.Add(1) }}
	c := NewChannel(w)

	for i := range 3 {
		if err := c.Send(newRequest(Payload{}, string(rune('a'+i)))); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if got := notified.Load(); got != 3 {
		t.Fatalf("waker notified %d times, want 3", got)
	}
}

func TestChannelDrainTakesWholeBacklog(t *testing.T) {
	c := NewChannel(nil)
	for i := range 5 {
		if err := c.Send(newRequest(Payload{}, string(rune('a'+i)))); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	batch := c.drain()
	if len(batch) != 5 {
		t.Fatalf("drain returned %d requests, want 5", len(batch))
	}
	if c.Len() != 0 {
		t.Fatalf("queue not empty after drain: %d", c.Len())
	}
	if got := c.drain(); got != nil {
		t.Fatalf("second drain returned %d requests, want nil", len(got))
	}
}
