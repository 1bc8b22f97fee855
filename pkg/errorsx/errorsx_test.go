package errorsx

import (
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonLLMGenerate)
	if Reason(err) != ReasonLLMGenerate {
		t.Fatalf("expected reason %s, got %s", ReasonLLMGenerate, Reason(err))
	}
	if !HasReason(err, ReasonLLMGenerate) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonSTTExit)
	second := Wrap(first, ReasonLLMGenerate)
	if Reason(second) != ReasonSTTExit {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
}

func TestReasonSurvivesFmtWrap(t *testing.T) {
	err := fmt.Errorf("search: %w", Wrap(assertErr{}, ReasonSearchRequest))
	if !HasReason(err, ReasonSearchRequest) {
		t.Fatalf("expected reason through fmt wrap, got %s", Reason(err))
	}
	if Reason(nil) != ReasonUnknown {
		t.Fatalf("expected unknown reason for nil")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestErrorfAndFatal(t *testing.T) {
	err := Errorf(ReasonConfigMissing, "search.enabled requires %s", "search.api_key")
	if err.Error() != "search.enabled requires search.api_key" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	cases := map[ReasonCode]bool{
		ReasonConfigMissing:  true,
		ReasonConfigInvalid:  true,
		ReasonTranscriptLoad: true,
		ReasonLLMGenerate:    false,
		ReasonSTTExit:        false,
	}
	for reason, want := range cases {
		if got := Fatal(fmt.Errorf("startup: %w", Wrap(assertErr{}, reason))); got != want {
			t.Fatalf("%s: expected fatal=%v", reason, want)
		}
	}
	if Fatal(assertErr{}) {
		t.Fatalf("untagged errors are not fatal")
	}
	if !HasAny(Wrap(assertErr{}, ReasonLLMRateLimit), ReasonLLMGenerate, ReasonLLMRateLimit) {
		t.Fatalf("expected HasAny to match the second reason")
	}
}
