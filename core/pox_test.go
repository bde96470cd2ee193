package core

import (
	"strings"
	"testing"
)

func TestFormatGrade_HalfUpOneDigit(t *testing.T) {
	cases := map[float64]string{
		0.0:  "0.0",
		0.04: "0.0",
		0.05: "0.1",
		0.84: "0.8",
		0.85: "0.9",
		0.99: "1.0",
		1.0:  "1.0",
	}
	for grade, want := range cases {
		if got := FormatGrade(grade); got != want {
			t.Fatalf("FormatGrade(%v) = %q, want %q", grade, got, want)
		}
	}
}

func TestValidGrade_Boundaries(t *testing.T) {
	for _, grade := range []float64{0.0, 0.5, 1.0} {
		if !ValidGrade(grade) {
			t.Fatalf("expected %v to be valid", grade)
		}
	}
	for _, grade := range []float64{-0.01, 1.01, 2} {
		if ValidGrade(grade) {
			t.Fatalf("expected %v to be rejected", grade)
		}
	}
}

func TestBuildReplaceResultEnvelope_CarriesSourcedIDAndGrade(t *testing.T) {
	body, messageID, err := BuildReplaceResultEnvelope("sourced-1", 0.85)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if messageID == "" {
		t.Fatalf("expected a message identifier")
	}
	rendered := string(body)
	if !strings.Contains(rendered, "<sourcedId>sourced-1</sourcedId>") {
		t.Fatalf("missing sourced id in %s", rendered)
	}
	if !strings.Contains(rendered, "<textString>0.9</textString>") {
		t.Fatalf("missing formatted grade in %s", rendered)
	}
	if !strings.Contains(rendered, "<imsx_messageIdentifier>"+messageID+"</imsx_messageIdentifier>") {
		t.Fatalf("missing message identifier in %s", rendered)
	}
	if !strings.Contains(rendered, "replaceResultRequest") {
		t.Fatalf("missing replaceResultRequest element in %s", rendered)
	}
}

func TestBuildReplaceResultEnvelope_UniqueMessageIDs(t *testing.T) {
	_, first, err := BuildReplaceResultEnvelope("sourced-1", 0.5)
	if err != nil {
		t.Fatalf("build first: %v", err)
	}
	_, second, err := BuildReplaceResultEnvelope("sourced-1", 0.5)
	if err != nil {
		t.Fatalf("build second: %v", err)
	}
	if first == second {
		t.Fatalf("expected unique message identifiers, both were %s", first)
	}
}

func TestBuildReplaceResultEnvelope_EscapesSourcedID(t *testing.T) {
	body, _, err := BuildReplaceResultEnvelope(`a<b&"c"`, 1.0)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	rendered := string(body)
	if strings.Contains(rendered, "<sourcedId>a<b") {
		t.Fatalf("sourced id was not escaped: %s", rendered)
	}
	if !strings.Contains(rendered, "a&lt;b&amp;") {
		t.Fatalf("expected escaped sourced id in %s", rendered)
	}
}

func TestBuildReplaceResultEnvelope_RequiresResultID(t *testing.T) {
	if _, _, err := BuildReplaceResultEnvelope("  ", 0.5); err == nil {
		t.Fatalf("expected error for empty result id")
	}
}

func TestOutcomeAccepted_MarkerScan(t *testing.T) {
	body := []byte(`<imsx_codeMajor>success</imsx_codeMajor>`)
	if !OutcomeAccepted(body, "success") {
		t.Fatalf("expected success marker to match")
	}
	if OutcomeAccepted([]byte("<imsx_codeMajor>failure</imsx_codeMajor>"), "success") {
		t.Fatalf("expected failure body to be rejected")
	}
	// An empty marker falls back to the default.
	if !OutcomeAccepted(body, "") {
		t.Fatalf("expected default marker to match")
	}
}
