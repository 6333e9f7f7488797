package key

import "testing"

func TestRightsHas(t *testing.T) {
	if !RightsReadAddWrite.Has(RightsRead) {
		t.Fatalf("READ_ADD_WRITE should grant READ")
	}
	if RightsRead.Has(RightsWrite) {
		t.Fatalf("READ alone must not grant WRITE")
	}
	if !RightsReadWrite.Has(RightsReadWrite) {
		t.Fatalf("a mask should grant itself")
	}
}

func TestRightsString(t *testing.T) {
	cases := map[Rights]string{
		RightsNone:         "NONE",
		RightsRead:         "READ",
		RightsAdd:          "ADD",
		RightsWrite:        "WRITE",
		RightsReadAdd:      "READ_ADD",
		RightsReadWrite:    "READ_WRITE",
		RightsAddWrite:     "ADD_WRITE",
		RightsReadAddWrite: "READ_ADD_WRITE",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Fatalf("Rights(%d).String() = %q, want %q", r, got, want)
		}
	}
}
