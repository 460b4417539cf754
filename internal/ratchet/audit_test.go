package ratchet

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ferdousbhai/create-fastreact/internal/ledger"
)

func ptr(l ledger.Ledger) *ledger.Ledger { return &l }

func features(descs ...string) ledger.Ledger {
	l := ledger.Ledger{}
	for _, d := range descs {
		l = append(l, ledger.Feature{Category: "core", Description: d, Steps: []string{"check " + d}})
	}
	return l
}

func TestAudit(t *testing.T) {
	tests := []struct {
		name           string
		before         *ledger.Ledger
		after          *ledger.Ledger
		allowAdditions bool
		wantValid      bool
		wantReason     string
	}{
		{"first creation", nil, ptr(features("a", "b")), false, true, ""},
		{"absent both", nil, nil, false, true, ""},
		{"deleted", ptr(features("a")), nil, true, false, ReasonDeleted},
		{"unchanged", ptr(features("a", "b")), ptr(features("a", "b")), false, true, ""},
		{"removed", ptr(features("a", "b")), ptr(features("a")), true, false, "removed or modified"},
		{"description edited", ptr(features("login works")), ptr(features("login works well")), true, false, "removed or modified"},
		{"added in coding", ptr(features("a")), ptr(features("a", "b")), false, false, "new features added"},
		{"added in init", ptr(features("a")), ptr(features("a", "b")), true, true, ""},
		{"reordered", ptr(features("a", "b")), ptr(features("b", "a")), false, true, ""},
		{"emptied", ptr(features("a")), ptr(features()), true, false, "removed or modified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Audit(tt.before, tt.after, tt.allowAdditions)
			if got.Valid != tt.wantValid {
				t.Fatalf("Audit valid = %v, want %v (reason %q)", got.Valid, tt.wantValid, got.Reason)
			}
			if !strings.Contains(got.Reason, tt.wantReason) {
				t.Errorf("Audit reason = %q, want it to contain %q", got.Reason, tt.wantReason)
			}
			if !got.Valid && got.Reason == "" {
				t.Error("invalid verdict without a reason")
			}
		})
	}
}

func TestAudit_ReasonShortensDescriptions(t *testing.T) {
	long := strings.Repeat("x", 80)
	got := Audit(ptr(features(long)), ptr(features()), true)
	if !strings.Contains(got.Reason, strings.Repeat("x", 60)+"...") {
		t.Errorf("reason not shortened: %q", got.Reason)
	}
	if strings.Contains(got.Reason, strings.Repeat("x", 61)) {
		t.Errorf("reason carries the full description: %q", got.Reason)
	}
	if diff := cmp.Diff([]string{long}, got.Removed); diff != "" {
		t.Errorf("Removed mismatch (-want +got):\n%s", diff)
	}
}

// randomLedger builds a ledger of n distinct features with random passes.
func randomLedger(r *rand.Rand, n int) ledger.Ledger {
	l := ledger.Ledger{}
	for i := 0; i < n; i++ {
		l = append(l, ledger.Feature{
			Category:    fmt.Sprintf("cat-%d", r.Intn(3)),
			Description: fmt.Sprintf("feature %d", i),
			Passes:      r.Intn(2) == 0,
		})
	}
	return l
}

func TestAudit_IdempotentOnNoOpSession(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		l := randomLedger(r, r.Intn(12))
		c := l.Clone()
		if got := Audit(&l, &c, false); !got.Valid {
			t.Fatalf("Audit(L, L) invalid for %d features: %s", len(l), got.Reason)
		}
	}
}

func TestAudit_FlippingToPassingIsAlwaysValid(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		before := randomLedger(r, 1+r.Intn(12))
		after := before.Clone()
		for j := range after {
			if !after[j].Passes && r.Intn(2) == 0 {
				after[j].Passes = true
			}
		}
		for _, allow := range []bool{true, false} {
			if got := Audit(&before, &after, allow); !got.Valid {
				t.Fatalf("Audit rejected a passes flip (allowAdditions=%v): %s", allow, got.Reason)
			}
		}
	}
}
