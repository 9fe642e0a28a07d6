package queue

import "testing"

func TestFormatLines(t *testing.T) {
	if got := formatLines(nil); got != "[]" {
		t.Errorf("empty lines = %q, want []", got)
	}

	lines := []SaleLine{
		{LineNo: 1, EventTitle: "Concert", VenueName: "Arena", SectorName: "Stalls", Quantity: 2, UnitIndices: []uint32{3, 4}},
		{LineNo: 2, EventTitle: "Concert", VenueName: "Arena", SectorName: "Floor", Quantity: 1},
	}
	want := `[1:"Concert"/"Arena"/"Stalls" x2 (3,4); 2:"Concert"/"Arena"/"Floor" x1]`
	if got := formatLines(lines); got != want {
		t.Errorf("formatLines = %q, want %q", got, want)
	}
}

func TestHandleMessageRejectsBadJSON(t *testing.T) {
	if err := handleMessage([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
