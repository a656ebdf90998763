package instancecfg_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dantte-lp/bfdd/internal/instancecfg"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestParseSingleInstance(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance peer1 {
	neighbor_ip 192.0.2.1
	source_ip 192.0.2.254
	min_rx 50
	min_tx 50
	idle_tx 1000
	multiplier 3
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}

	got := instances[0]
	if got.Name != "peer1" {
		t.Errorf("Name = %q, want peer1", got.Name)
	}
	if got.NeighborAddr.String() != "192.0.2.1" {
		t.Errorf("NeighborAddr = %s, want 192.0.2.1", got.NeighborAddr)
	}
	if got.SourceAddr.String() != "192.0.2.254" {
		t.Errorf("SourceAddr = %s, want 192.0.2.254", got.SourceAddr)
	}
	if got.LocalMinRxInterval != 50*time.Millisecond {
		t.Errorf("LocalMinRxInterval = %s, want 50ms", got.LocalMinRxInterval)
	}
	if got.LocalMinTxInterval != 50*time.Millisecond {
		t.Errorf("LocalMinTxInterval = %s, want 50ms", got.LocalMinTxInterval)
	}
	if got.LocalIdleTxInterval != 1*time.Second {
		t.Errorf("LocalIdleTxInterval = %s, want 1s", got.LocalIdleTxInterval)
	}
	if got.LocalDetectMult != 3 {
		t.Errorf("LocalDetectMult = %d, want 3", got.LocalDetectMult)
	}
	if got.Disabled {
		t.Error("Disabled = true, want false")
	}
}

func TestParseMultipleInstances(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance a {
	neighbor_ip 10.0.0.1
}
bfd_instance b {
	neighbor_ip 10.0.0.2
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}
	if instances[0].Name != "a" || instances[1].Name != "b" {
		t.Errorf("names = %q, %q", instances[0].Name, instances[1].Name)
	}
}

func TestParseExplicitDisabled(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance p {
	neighbor_ip 10.0.0.1
	disabled
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !instances[0].Disabled {
		t.Error("Disabled = false, want true")
	}
}

func TestParseMalformedNeighborDisables(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance p {
	neighbor_ip not-an-address
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !instances[0].Disabled {
		t.Error("Disabled = false, want true for malformed neighbor_ip")
	}
}

func TestParseMissingNeighborDisables(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance p {
	min_tx 50
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !instances[0].Disabled {
		t.Error("Disabled = false, want true when neighbor_ip is absent")
	}
}

func TestParseMalformedSourceIPIgnored(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance p {
	neighbor_ip 10.0.0.1
	source_ip garbage
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if instances[0].Disabled {
		t.Error("Disabled = true, want false: malformed source_ip is ignored, not disabling")
	}
	if instances[0].SourceAddr.IsValid() {
		t.Error("SourceAddr should remain zero value after malformed input")
	}
}

func TestParseRangeBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		keyword  string
		arg      string
		wantDrop bool
	}{
		{"min_tx at floor", "min_tx", "1", false},
		{"min_tx at ceiling", "min_tx", "1000", false},
		{"min_tx over ceiling", "min_tx", "1001", true},
		{"min_tx at zero", "min_tx", "0", true},
		{"idle_tx at floor", "idle_tx", "1000", false},
		{"idle_tx under floor", "idle_tx", "999", true},
		{"idle_tx at ceiling", "idle_tx", "10000", false},
		{"multiplier at floor", "multiplier", "1", false},
		{"multiplier at ceiling", "multiplier", "10", false},
		{"multiplier over ceiling", "multiplier", "11", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			src := "bfd_instance p {\n\tneighbor_ip 10.0.0.1\n\t" + tc.keyword + " " + tc.arg + "\n}\n"
			instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if instances[0].Disabled != tc.wantDrop {
				t.Errorf("Disabled = %v, want %v for %s=%s", instances[0].Disabled, tc.wantDrop, tc.keyword, tc.arg)
			}
		})
	}
}

func TestParseNameTruncation(t *testing.T) {
	t.Parallel()

	longName := strings.Repeat("x", 32)
	src := "bfd_instance " + longName + " {\n\tneighbor_ip 10.0.0.1\n}\n"

	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instances[0].Name) != 31 {
		t.Errorf("Name length = %d, want 31", len(instances[0].Name))
	}
	if !instances[0].Disabled {
		t.Error("Disabled = false, want true after name truncation")
	}
}

func TestParseDuplicateNameRenamesAndDisables(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance foo {
	neighbor_ip 10.0.0.1
}
bfd_instance foo {
	neighbor_ip 10.0.0.2
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("got %d instances, want 2", len(instances))
	}
	if instances[0].Name != "foo" {
		t.Errorf("first instance name = %q, want foo", instances[0].Name)
	}
	if instances[0].Disabled {
		t.Error("first instance should remain enabled")
	}
	if instances[1].Name == "foo" {
		t.Error("second instance should be renamed away from foo")
	}
	if !instances[1].Disabled {
		t.Error("second (duplicate) instance should be disabled")
	}
}

func TestParseUnterminatedBlockErrors(t *testing.T) {
	t.Parallel()

	src := `
bfd_instance p {
	neighbor_ip 10.0.0.1
`
	_, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err == nil {
		t.Fatal("expected error for unterminated block")
	}
}

func TestParseIgnoresUnrelatedLines(t *testing.T) {
	t.Parallel()

	src := `
some_other_directive value

bfd_instance p {
	neighbor_ip 10.0.0.1
}
`
	instances, err := instancecfg.Parse(strings.NewReader(src), discardLogger())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}
}
