package transport

import "testing"

func TestReadyGateRequiresAllAcks(t *testing.T) {
	mock := NewMock()
	g := NewReadyGate(mock, []string{"bbo", "activeAssetCtx", "orderUpdates"})

	if g.IsReady() {
		t.Fatal("expected not ready before any acks")
	}

	g.OnAck("bbo")
	g.OnAck("activeAssetCtx")
	if g.IsReady() {
		t.Fatal("expected not ready with one required ack outstanding")
	}

	g.OnAck("orderUpdates")
	if !g.IsReady() {
		t.Fatal("expected ready with all required subscriptions acked")
	}
}

func TestReadyGateFollowsTransportState(t *testing.T) {
	mock := NewMock()
	g := NewReadyGate(mock, []string{"bbo"})
	g.OnAck("bbo")

	mock.SetReady(false)
	if g.IsReady() {
		t.Fatal("expected not ready while transport is down")
	}
	mock.SetReady(true)
	if !g.IsReady() {
		t.Fatal("expected ready again once transport recovers")
	}
}

func TestReadyGateIgnoresUnknownChannelsAndResets(t *testing.T) {
	mock := NewMock()
	g := NewReadyGate(mock, []string{"bbo"})

	g.OnAck("trades") // not required
	if g.IsReady() {
		t.Fatal("unknown channel ack must not satisfy the gate")
	}

	g.OnAck("bbo")
	g.Reset()
	if g.IsReady() {
		t.Fatal("expected not ready after reset")
	}
}
