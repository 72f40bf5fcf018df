package types

import (
	"encoding/json"
	"testing"
)

// Serializing a signed action envelope and re-parsing it must preserve the
// action, nonce, and signature exactly.
func TestPostEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	env := PostEnvelope{
		Method: "post",
		ID:     42,
		Request: ActionRequest{
			Type: "action",
			Payload: ActionPayload{
				Action: OrderAction{
					Type: "order",
					Orders: []WireOrder{{
						Asset:     110_042,
						IsBuy:     true,
						LimitPx:   "100.5",
						Sz:        "1.5",
						OrderType: "limit",
						Cloid:     "cloid-1",
					}},
					Grouping: "na",
				},
				Nonce:     1234,
				Signature: Signature{R: "0x01", S: "0x02", V: 27},
			},
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got PostEnvelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Method != env.Method || got.ID != env.ID || got.Request.Type != env.Request.Type {
		t.Fatalf("envelope fields changed: %+v", got)
	}
	if got.Request.Payload.Nonce != 1234 {
		t.Fatalf("nonce = %d, want 1234", got.Request.Payload.Nonce)
	}
	if got.Request.Payload.Signature != env.Request.Payload.Signature {
		t.Fatalf("signature = %+v, want %+v", got.Request.Payload.Signature, env.Request.Payload.Signature)
	}

	// The action parses back as a generic document; re-decoding it into the
	// typed form must reproduce the original order exactly.
	raw, err := json.Marshal(got.Request.Payload.Action)
	if err != nil {
		t.Fatalf("re-marshal action: %v", err)
	}
	var act OrderAction
	if err := json.Unmarshal(raw, &act); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if act.Type != "order" || act.Grouping != "na" || len(act.Orders) != 1 {
		t.Fatalf("action shape changed: %+v", act)
	}
	if act.Orders[0] != env.Request.Payload.Action.(OrderAction).Orders[0] {
		t.Fatalf("order changed across round trip: %+v", act.Orders[0])
	}
}

// Omitted vault address must not appear on the wire at all.
func TestActionPayloadOmitsEmptyVault(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ActionPayload{
		Action:    CancelAction{Type: "cancel"},
		Nonce:     1,
		Signature: Signature{R: "0x01", S: "0x02", V: 28},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, present := m["vaultAddress"]; present {
		t.Fatal("empty vaultAddress must be omitted from the wire form")
	}
}
