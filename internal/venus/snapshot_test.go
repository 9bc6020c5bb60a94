package venus

import (
	"errors"
	"strings"
	"testing"
)

func TestSnapshot_Require(t *testing.T) {
	s := Snapshot{"soc": 50.0, "mode": nil}

	if err := s.Require("soc", "mode"); err != nil {
		t.Errorf("Require(soc, mode) = %v, want nil (null still counts as present)", err)
	}

	err := s.Require("soc", "zeta", "alpha")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Require() error = %v, want ErrMalformedResponse", err)
	}
	if !strings.Contains(err.Error(), "[alpha zeta]") {
		t.Errorf("error %q should list missing fields sorted", err)
	}
}

func TestSnapshot_Accessors(t *testing.T) {
	s := Snapshot{"soc": 42.0, "mode": "Manual", "label": "x"}

	if s.Mode() != ModeManual {
		t.Errorf("Mode() = %q", s.Mode())
	}
	if v, ok := s.Number("soc"); !ok || v != 42 {
		t.Errorf("Number(soc) = %v, %v", v, ok)
	}
	if _, ok := s.Number("label"); ok {
		t.Error("Number(label) should not be numeric")
	}
	if (Snapshot{}).Mode() != "" {
		t.Error("Mode() on empty snapshot should be empty")
	}
	if !(Snapshot(nil)).Empty() {
		t.Error("nil snapshot should be empty")
	}
}

func TestSnapshot_Clone(t *testing.T) {
	s := Snapshot{"soc": 1.0}
	c := s.Clone()
	c["soc"] = 2.0
	c["timestamp"] = "now"

	if s["soc"] != 1.0 || s.Has("timestamp") {
		t.Errorf("Clone() shares storage with original: %v", s)
	}
	if Snapshot(nil).Clone() == nil {
		t.Error("Clone() of nil should return an empty map")
	}
}

func TestSnapshot_MergeMissing(t *testing.T) {
	s := Snapshot{"soc": 80.0}
	s.mergeMissing(Snapshot{"soc": 10.0, "mode": "AI"})

	if s["soc"] != 80.0 {
		t.Errorf("existing field overwritten: soc = %v", s["soc"])
	}
	if s.Mode() != ModeAI {
		t.Errorf("missing field not merged: mode = %q", s.Mode())
	}
}
