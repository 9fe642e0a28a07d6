package repository

import (
	"testing"

	"github.com/alperoz/ticket-sales/internal/reservation"
)

func TestPlaceholders(t *testing.T) {
	cases := map[int]string{
		1: "?",
		2: "?,?",
		5: "?,?,?,?,?",
	}
	for n, want := range cases {
		if got := placeholders(n); got != want {
			t.Errorf("placeholders(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestUnitKeyArgs(t *testing.T) {
	ref := reservation.SectorRef{EventID: 7, VenueID: 3, SectorID: 11}
	args := unitKeyArgs(ref, []uint32{4, 5})
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if args[0] != uint64(7) || args[1] != uint64(3) || args[2] != uint64(11) {
		t.Errorf("sector key columns wrong: %v", args[:3])
	}
	if args[3] != uint32(4) || args[4] != uint32(5) {
		t.Errorf("index args wrong: %v", args[3:])
	}
	if got := unitKeyArgs(ref, nil); len(got) != 3 {
		t.Errorf("expected only key columns without indices, got %v", got)
	}
}
