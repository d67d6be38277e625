package config

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 5, 1, 10, 7, 0, 0, time.UTC)
	cases := []struct {
		raw  string
		next time.Time
	}{
		{"*/30 * * * *", time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{"cron:@hourly", time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)},
		{"55m", base.Add(55 * time.Minute)},
		{"02:30", base.Add(150 * time.Minute)},
		{"every:10m", base.Add(10 * time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			s, err := ParseSchedule(tc.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tc.raw, err)
			}
			if got := s.Next(base); !got.Equal(tc.next) {
				t.Fatalf("next=%s want %s", got, tc.next)
			}
		})
	}

	for _, bad := range []string{"", "soon", "00:75", "interval:0s", "every day"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("ParseSchedule(%q) should fail", bad)
		}
	}
}
