package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseImageRef_RemoteSchemes(t *testing.T) {
	for _, raw := range []string{
		"http://example.test/a.png",
		"https://example.test/a.png",
		"s3://inputs/a.png",
	} {
		ref, err := ParseImageRef(raw)
		if err != nil {
			t.Fatalf("ParseImageRef(%q) err=%v", raw, err)
		}
		if ref.Kind != RefRemote {
			t.Fatalf("ParseImageRef(%q) kind=%q, want remote", raw, ref.Kind)
		}
		if ref.URL != raw {
			t.Fatalf("ParseImageRef(%q) url=%q", raw, ref.URL)
		}
	}
}

func TestParseImageRef_InlinePayload(t *testing.T) {
	ref, err := ParseImageRef("aGVsbG8=")
	if err != nil {
		t.Fatalf("ParseImageRef() err=%v", err)
	}
	if ref.Kind != RefInline {
		t.Fatalf("kind=%q, want inline", ref.Kind)
	}
	if ref.Data != "aGVsbG8=" {
		t.Fatalf("data=%q", ref.Data)
	}
}

func TestParseImageRef_Empty(t *testing.T) {
	_, err := ParseImageRef("   ")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err=%v, want ErrInvalidRequest", err)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := Request{
		Operation: "composite",
		Inputs: map[string]ImageRef{
			"source": {Kind: RefInline, Data: "aGVsbG8="},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	cases := []struct {
		name string
		req  Request
	}{
		{name: "missing operation", req: Request{Inputs: valid.Inputs}},
		{name: "no inputs", req: Request{Operation: "composite"}},
		{name: "empty role", req: Request{Operation: "composite", Inputs: map[string]ImageRef{" ": {Kind: RefInline, Data: "x"}}}},
		{name: "inline without payload", req: Request{Operation: "composite", Inputs: map[string]ImageRef{"source": {Kind: RefInline}}}},
		{name: "remote without url", req: Request{Operation: "composite", Inputs: map[string]ImageRef{"source": {Kind: RefRemote}}}},
	}
	for _, tc := range cases {
		if err := tc.req.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: err=%v, want ErrInvalidRequest", tc.name, err)
		}
	}
}

func TestFailureFromErr_Kinds(t *testing.T) {
	cases := []struct {
		err  error
		want FailureKind
	}{
		{fmt.Errorf("source: %w: bad padding", ErrDecode), FailureDecode},
		{fmt.Errorf("target: %w: status 404", ErrFetch), FailureFetch},
		{fmt.Errorf("waiting for slot: %w", ErrTimeout), FailureTimeout},
		{context.DeadlineExceeded, FailureTimeout},
		{context.Canceled, FailureTimeout},
		{fmt.Errorf("%w: exit status 1", ErrExecution), FailureExecution},
		{errors.New("wat"), FailureInternal},
	}
	for _, tc := range cases {
		got := FailureFromErr(tc.err)
		if got == nil || got.Kind != tc.want {
			t.Fatalf("FailureFromErr(%v)=%v, want kind %q", tc.err, got, tc.want)
		}
	}
}

func TestFailureFromErr_TimeoutWinsOverPhase(t *testing.T) {
	// A fetch aborted by deadline expiry reports as timeout, not fetch.
	err := fmt.Errorf("target: %w: %w", ErrFetch, context.DeadlineExceeded)
	got := FailureFromErr(err)
	if got.Kind != FailureTimeout {
		t.Fatalf("kind=%q, want timeout", got.Kind)
	}
}

func TestFailureFromErr_Nil(t *testing.T) {
	if got := FailureFromErr(nil); got != nil {
		t.Fatalf("FailureFromErr(nil)=%v, want nil", got)
	}
}
