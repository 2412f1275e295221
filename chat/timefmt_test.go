package chat

import (
	"testing"
	"time"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{
			name: "JustNow",
			ts:   now.Add(-30 * time.Second),
			want: "Just now",
		},
		{
			name: "OneMinute",
			ts:   now.Add(-90 * time.Second),
			want: "1 minute ago",
		},
		{
			name: "Minutes",
			ts:   now.Add(-5 * time.Minute),
			want: "5 minutes ago",
		},
		{
			name: "OneHour",
			ts:   now.Add(-61 * time.Minute),
			want: "1 hour ago",
		},
		{
			name: "Hours",
			ts:   now.Add(-3*time.Hour - 20*time.Minute),
			want: "3 hours ago",
		},
		{
			name: "OneDay",
			ts:   now.Add(-25 * time.Hour),
			want: "1 day ago",
		},
		{
			name: "Days",
			ts:   now.Add(-49 * time.Hour),
			want: "2 days ago",
		},
		{
			name: "FutureClampsToNow",
			ts:   now.Add(time.Hour),
			want: "Just now",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeTime(now, tt.ts); got != tt.want {
				t.Errorf("relativeTime() = %q, want %q", got, tt.want)
			}
		})
	}
}
