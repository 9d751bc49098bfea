package cli

import (
	"testing"

	"github.com/nik1740/netspeed/pkg/config"
)

func TestSelectProtocolRequiresExactlyOne(t *testing.T) {
	if _, err := selectProtocol(false, false, false, false, false, false); err == nil {
		t.Fatal("expected error when no protocol flag is set")
	}
	if _, err := selectProtocol(true, true, false, false, false, false); err == nil {
		t.Fatal("expected error when two protocol flags are set")
	}
	p, err := selectProtocol(false, false, false, true, false, false)
	if err != nil {
		t.Fatalf("selectProtocol: %v", err)
	}
	if p != config.ProtocolHTTP2 {
		t.Fatalf("protocol = %q, want http2", p)
	}
}

func TestParseSizes(t *testing.T) {
	sizes, err := parseSizes("1024, 65536,1048576")
	if err != nil {
		t.Fatalf("parseSizes: %v", err)
	}
	want := []int{1024, 65536, 1048576}
	if len(sizes) != len(want) {
		t.Fatalf("sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("sizes[%d] = %d, want %d", i, sizes[i], want[i])
		}
	}

	if _, err := parseSizes(""); err == nil {
		t.Fatal("expected error for empty sizes")
	}
	if _, err := parseSizes("1024,notanumber"); err == nil {
		t.Fatal("expected error for non-numeric size")
	}
	if _, err := parseSizes("0,1024"); err == nil {
		t.Fatal("expected error for non-positive size")
	}
}

func TestNewRootCommandWiresSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"client", "server", "report"} {
		if !names[want] {
			t.Fatalf("root command missing subcommand %q", want)
		}
	}
}
