// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"sync"
	"testing"

	"github.com/dtn7x/bpa/eid"
)

type recordingIngress struct {
	mu       sync.Mutex
	dispatch [][]byte
}

func (r *recordingIngress) Ingest(bytes []byte, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatch = append(r.dispatch, bytes)
}

type fakeCla struct {
	mu        sync.Mutex
	sink      Sink
	forwarded [][]byte
	result    ForwardResult
	mtu       uint64
	err       error
}

func (c *fakeCla) OnConnect(_ eid.ID, sink Sink) { c.sink = sink }
func (c *fakeCla) OnDisconnect()                 {}
func (c *fakeCla) Forward(_ eid.ID, bytes []byte) (ForwardResult, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwarded = append(c.forwarded, bytes)
	return c.result, c.mtu, c.err
}

func TestRegisterAndForward(t *testing.T) {
	ing := &recordingIngress{}
	reg := NewRegistry(ing)
	c := &fakeCla{result: Sent}
	pattern := eid.MustCompilePattern("dtn://desty/*")

	sk, err := reg.Register("clax", c, eid.MustParse("dtn://clax/"), []eid.Pattern{pattern}, nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sk == nil {
		t.Fatal("expected a non-nil Sink")
	}

	res, _, err := reg.Forward(eid.MustParse("dtn://desty/"), []byte("hello"), 0)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if res != Sent {
		t.Fatalf("expected Sent, got %v", res)
	}
	if len(c.forwarded) != 1 {
		t.Fatalf("expected one forwarded payload, got %d", len(c.forwarded))
	}
}

func TestForwardNoMatchingCla(t *testing.T) {
	reg := NewRegistry(&recordingIngress{})
	if _, _, err := reg.Forward(eid.MustParse("dtn://nowhere/"), []byte("x"), 0); err != ErrNoMatchingCla {
		t.Fatalf("expected ErrNoMatchingCla, got %v", err)
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	reg := NewRegistry(&recordingIngress{})
	c := &fakeCla{result: Sent}

	if _, err := reg.Register("clax", c, eid.MustParse("dtn://clax/"), nil, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register("clax", &fakeCla{}, eid.MustParse("dtn://clax/"), nil, nil); err == nil {
		t.Fatal("expected a duplicate CLA name registration to fail")
	}
}

func TestSinkDispatchReachesIngress(t *testing.T) {
	ing := &recordingIngress{}
	reg := NewRegistry(ing)
	c := &fakeCla{}

	sk, err := reg.Register("clax", c, eid.MustParse("dtn://clax/"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	sk.Dispatch([]byte("inbound bytes"))
	if len(ing.dispatch) != 1 || string(ing.dispatch[0]) != "inbound bytes" {
		t.Fatal("expected Dispatch to reach the registry's Ingress")
	}
}

func TestSinkAddRemoveSubnet(t *testing.T) {
	reg := NewRegistry(&recordingIngress{})
	c := &fakeCla{result: Sent}

	sk, err := reg.Register("clax", c, eid.MustParse("dtn://clax/"), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	dest := eid.MustParse("dtn://desty/")
	if _, _, err := reg.Forward(dest, []byte("x"), 0); err != ErrNoMatchingCla {
		t.Fatal("expected no match before AddSubnet")
	}

	pattern := eid.MustCompilePattern("dtn://desty/*")
	sk.AddSubnet(pattern)
	if _, _, err := reg.Forward(dest, []byte("x"), 0); err != nil {
		t.Fatalf("expected a match after AddSubnet, got %v", err)
	}

	sk.RemoveSubnet(pattern)
	if _, _, err := reg.Forward(dest, []byte("x"), 0); err != ErrNoMatchingCla {
		t.Fatal("expected no match after RemoveSubnet")
	}
}

func TestUnregisterCallsOnDisconnect(t *testing.T) {
	reg := NewRegistry(&recordingIngress{})
	c := &fakeCla{result: Sent}

	disconnected := make(chan struct{}, 1)
	wrapped := &disconnectTrackingCla{fakeCla: c, disconnected: disconnected}

	if _, err := reg.Register("clax", wrapped, eid.MustParse("dtn://clax/"), nil, nil); err != nil {
		t.Fatal(err)
	}
	reg.Unregister("clax")

	select {
	case <-disconnected:
	default:
		t.Fatal("expected OnDisconnect to be called")
	}

	if _, _, err := reg.Forward(eid.MustParse("dtn://desty/"), []byte("x"), 0); err != ErrNoMatchingCla {
		t.Fatal("expected the unregistered CLA to no longer match anything")
	}
}

type disconnectTrackingCla struct {
	*fakeCla
	disconnected chan struct{}
}

func (c *disconnectTrackingCla) OnDisconnect() {
	c.fakeCla.OnDisconnect()
	c.disconnected <- struct{}{}
}
