package uetsim

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestPacketCloneIsIndependent(t *testing.T) {
	orig := &Packet{
		Seq:        7,
		ByteLength: 64,
		Security:   SecurityContext{Token: []byte("tok")},
	}
	clone := orig.Clone()

	clone.Seq = 99
	clone.Security.Token[0] = 'X'

	if orig.Seq != 7 {
		t.Fatalf("mutating clone.Seq affected original: %d", orig.Seq)
	}
	if orig.Security.Token[0] != 't' {
		t.Fatalf("mutating clone.Security.Token affected original: %q", orig.Security.Token)
	}
}

func TestPacketCloneMatchesOriginalFieldByField(t *testing.T) {
	orig := &Packet{
		Kind: KindINC, Source: "a", Destination: "b", Seq: 3,
		INC: INCFields{Collective: AllGather, Participants: 4},
	}
	clone := orig.Clone()

	if diff := cmp.Diff(orig, clone, cmpopts.IgnoreFields(Packet{}, "Security")); diff != "" {
		t.Fatalf("clone diverged from original (-orig +clone):\n%s", diff)
	}
}

func TestPacketCloneNilToken(t *testing.T) {
	orig := &Packet{Seq: 1}
	clone := orig.Clone()
	if clone.Security.Token != nil {
		t.Fatalf("expected nil token, got %v", clone.Security.Token)
	}
}

func TestStringers(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"Kind", KindINC.String(), "INC"},
		{"TransportType", TransportAck.String(), "ACK"},
		{"CollectiveType", ReduceScatter.String(), "REDUCE_SCATTER"},
		{"ReductionOp", ReduceProd.String(), "PROD"},
		{"LLRAckType", LLRNegative.String(), "NEGATIVE"},
		{"Kind unknown", Kind(99).String(), "UNKNOWN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}
