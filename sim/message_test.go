package sim

import "testing"

func TestIsAddressedTo(t *testing.T) {
	cases := []struct {
		name string
		m    Msg
		id   NodeID
		want bool
	}{
		{"direct match", Msg{Dst: 2}, 2, true},
		{"direct mismatch", Msg{Dst: 2}, 3, false},
		{"broadcast always matches", Msg{Dst: BroadcastID}, 7, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.m.IsAddressedTo(c.id); got != c.want {
				t.Errorf("IsAddressedTo(%d) = %v, want %v", c.id, got, c.want)
			}
		})
	}
}

func TestRTSPayloadRoundTrip(t *testing.T) {
	payload := EncodeRTSPayload(17, 4)
	vc, dataLen, err := DecodeRTSPayload(payload)
	if err != nil {
		t.Fatalf("DecodeRTSPayload: %v", err)
	}
	if vc != 17 || dataLen != 4 {
		t.Errorf("got vc=%d dataLen=%d, want vc=17 dataLen=4", vc, dataLen)
	}
}

func TestDecodeRTSPayloadMalformed(t *testing.T) {
	if _, _, err := DecodeRTSPayload([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a short payload")
	}
}

func TestCTSPayloadRoundTrip(t *testing.T) {
	payload := EncodeCTSPayload(9)
	vc, err := DecodeCTSPayload(payload)
	if err != nil {
		t.Fatalf("DecodeCTSPayload: %v", err)
	}
	if vc != 9 {
		t.Errorf("got vc=%d, want 9", vc)
	}
}

func TestDecodeCTSPayloadMalformed(t *testing.T) {
	if _, err := DecodeCTSPayload([]byte{1, 2}); err == nil {
		t.Fatal("expected an error for a short payload")
	}
}
