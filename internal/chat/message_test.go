package chat

import "testing"

func TestMessageTerminal(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusPending, false},
		{StatusUploading, false},
		{StatusSent, true},
		{StatusUploaded, true},
		{StatusFailed, true},
		{StatusDelivered, true},
		{StatusRead, true},
	}
	for _, tc := range cases {
		if got := (Message{Status: tc.status}).Terminal(); got != tc.want {
			t.Fatalf("Terminal() for %q = %v, want %v", tc.status, got, tc.want)
		}
	}
}
