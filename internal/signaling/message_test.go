package signaling

import (
	"encoding/json"
	"testing"
)

func TestHasPayload(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"offer with description", Message{Type: TypeOffer, Description: json.RawMessage(`{"sdp":"v=0"}`)}, true},
		{"offer without description", Message{Type: TypeOffer}, false},
		{"offer with null description", Message{Type: TypeOffer, Description: json.RawMessage(`null`)}, false},
		{"candidate carried in description field", Message{Type: TypeCandidate, Description: json.RawMessage(`{}`)}, false},
		{"candidate", Message{Type: TypeCandidate, Candidate: json.RawMessage(`{"candidate":"c"}`)}, true},
		{"answer with whitespace only", Message{Type: TypeAnswer, Description: json.RawMessage("  ")}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.HasPayload(); got != tc.want {
				t.Errorf("HasPayload() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRelayedKeepsPayloadBytes(t *testing.T) {
	raw := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	in := &Message{Type: TypeOffer, Room: "demo", Description: raw, SelfID: "spoofed", Count: 9}

	out := in.Relayed()
	if out.Type != TypeOffer || out.Room != "demo" {
		t.Fatalf("Relayed() = %+v, want offer for demo", out)
	}
	if string(out.Description) != string(raw) {
		t.Errorf("description = %s, want %s", out.Description, raw)
	}
	if out.SelfID != "" || out.Count != 0 {
		t.Errorf("Relayed() copied server-only fields: %+v", out)
	}
}

func TestWireShape(t *testing.T) {
	data, err := json.Marshal(Joined("demo", 2, "abc"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"joined","room":"demo","count":2,"selfId":"abc"}`
	if string(data) != want {
		t.Errorf("joined = %s, want %s", data, want)
	}

	data, _ = json.Marshal(Ready("demo", "abc"))
	want = `{"type":"ready","room":"demo","initiatorId":"abc"}`
	if string(data) != want {
		t.Errorf("ready = %s, want %s", data, want)
	}
}
