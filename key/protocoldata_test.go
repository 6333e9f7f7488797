package key

import "testing"

func TestCheckNextAllowsMajorBump(t *testing.T) {
	v := ProtocolVersion{Major: 1, Minor: 2, Patch: 3}
	if !v.CheckNext(ProtocolVersion{Major: 2, Minor: 0, Patch: 0}) {
		t.Fatalf("expected major bump with reset minor/patch to be valid")
	}
	if v.CheckNext(ProtocolVersion{Major: 2, Minor: 1, Patch: 0}) {
		t.Fatalf("a major bump must reset minor to zero")
	}
}

func TestCheckNextAllowsMinorAndPatchBumps(t *testing.T) {
	v := ProtocolVersion{Major: 1, Minor: 2, Patch: 3}
	if !v.CheckNext(ProtocolVersion{Major: 1, Minor: 3, Patch: 0}) {
		t.Fatalf("expected minor bump with reset patch to be valid")
	}
	if !v.CheckNext(ProtocolVersion{Major: 1, Minor: 2, Patch: 4}) {
		t.Fatalf("expected patch bump to be valid")
	}
	if v.CheckNext(ProtocolVersion{Major: 1, Minor: 2, Patch: 2}) {
		t.Fatalf("a decreasing patch must be rejected")
	}
}

func TestCheckNextAllowsNoOpUpgrade(t *testing.T) {
	v := ProtocolVersion{Major: 1, Minor: 0, Patch: 0}
	if !v.CheckNext(v) {
		t.Fatalf("an upgrade naming the same version must be accepted")
	}
}

func TestIsMajorVersion(t *testing.T) {
	v1 := ProtocolVersion{Major: 1}
	v2 := ProtocolVersion{Major: 2}
	if !v2.IsMajorVersion(v1) {
		t.Fatalf("expected v2 to be a major version relative to v1")
	}
	if v1.IsMajorVersion(v2) {
		t.Fatalf("v1 must not be a major version relative to v2")
	}
}
