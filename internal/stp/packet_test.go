package stp

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := StpPacket{
		Header: StpHeader{
			PacketNumber:     1,
			TimestampUs:      2,
			LatestAck:        3,
			AckTimestampEcho: 4,
		},
		Payload: []byte("hello world"),
	}

	enc := Encode(p)
	if len(enc) != 43 {
		t.Fatalf("encoded length = %d, want 43", len(enc))
	}

	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.Header != p.Header {
		t.Fatalf("decoded header = %+v, want %+v", got.Header, p.Header)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("decoded payload = %q, want %q", got.Payload, p.Payload)
	}
	if got.IsAckOnly() {
		t.Fatal("IsAckOnly() = true, want false")
	}
}

func TestDecodeRejectsShortDatagram(t *testing.T) {
	if _, err := Decode(make([]byte, HeaderLen-1)); err == nil {
		t.Fatal("expected error decoding a datagram shorter than the header")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding an empty datagram")
	}
}

func TestDecodeAckOnly(t *testing.T) {
	enc := Encode(StpPacket{Header: StpHeader{PacketNumber: 9}})
	if len(enc) != HeaderLen {
		t.Fatalf("ack-only encoded length = %d, want %d", len(enc), HeaderLen)
	}
	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !got.IsAckOnly() {
		t.Fatal("IsAckOnly() = false, want true")
	}
}

func TestEncodeDecodeRoundTripUpTo64KiB(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 64*1024)
	p := StpPacket{Header: StpHeader{PacketNumber: 7, TimestampUs: 8, LatestAck: 9, AckTimestampEcho: 10}, Payload: payload}
	got, err := Decode(Encode(p))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if got.Header != p.Header || !bytes.Equal(got.Payload, p.Payload) {
		t.Fatal("round-trip mismatch for 64KiB payload")
	}
}
