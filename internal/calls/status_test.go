package calls

import "testing"

func TestMapWebhookStatus_NormalizesSeparators(t *testing.T) {
	for _, in := range []string{"in_progress", "in-progress", "IN-PROGRESS", "In Progress", " in_progress "} {
		got, ok := mapWebhookStatus(in)
		if !ok || got != StatusInProgress {
			t.Fatalf("%q: expected IN_PROGRESS, got %q ok=%v", in, got, ok)
		}
	}
	for _, in := range []string{"cancelled", "canceled", "CANCELLED"} {
		if got, ok := mapWebhookStatus(in); !ok || got != StatusCancelled {
			t.Fatalf("%q: expected CANCELLED, got %q", in, got)
		}
	}
	if _, ok := mapWebhookStatus("queued"); ok {
		t.Fatalf("expected unknown status to be unmapped")
	}
}

func TestMapPollStatus_OnlyLowercases(t *testing.T) {
	if got, ok := mapPollStatus("COMPLETED"); !ok || got != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %q", got)
	}
	if _, ok := mapPollStatus("cancelled"); ok {
		t.Fatalf("poll table does not carry cancelled")
	}
	if _, ok := mapPollStatus("in-progress"); ok {
		t.Fatalf("poll table does not normalize hyphens")
	}
}

func TestStatusRank(t *testing.T) {
	if !(StatusInitiated.Rank() < StatusRinging.Rank() && StatusRinging.Rank() < StatusInProgress.Rank()) {
		t.Fatalf("expected forward ranks")
	}
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusNoAnswer, StatusBusy, StatusCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if StatusInProgress.Terminal() || Status("bogus").Valid() {
		t.Fatalf("unexpected rank classification")
	}
}

func TestValidE164(t *testing.T) {
	good := []string{"+14155550123", "+442071838750", "+9112345"}
	bad := []string{"12345", "+0123456789", "+1 415 555 0123", "+123456", "+1234567890123456", "", "14155550123"}
	for _, p := range good {
		if !validE164(p) {
			t.Fatalf("expected %q valid", p)
		}
	}
	for _, p := range bad {
		if validE164(p) {
			t.Fatalf("expected %q invalid", p)
		}
	}
}

func TestRegionOf(t *testing.T) {
	if got := regionOf("+14155550123"); got != "US" {
		t.Fatalf("expected US, got %q", got)
	}
	if got := regionOf("+442071838750"); got != "GB" {
		t.Fatalf("expected GB, got %q", got)
	}
}
