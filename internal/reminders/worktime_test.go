package reminders

import "testing"

func TestParseWorktimeStart(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want StartTime
		ok   bool
	}{
		{"08:00-20:00", StartTime{8, 0}, true},
		{"8:00-20:00", StartTime{8, 0}, true},
		{"  09:30 - 21:30 ", StartTime{9, 30}, true},
		{"0800-2000", StartTime{8, 0}, true},
		{"800", StartTime{8, 0}, true},
		{"2330", StartTime{23, 30}, true},
		{"23:59", StartTime{23, 59}, true},
		{"0:05", StartTime{0, 5}, true},

		{"", StartTime{}, false},
		{"   ", StartTime{}, false},
		{"-20:00", StartTime{}, false},
		{"24:00", StartTime{}, false},
		{"08:60", StartTime{}, false},
		{"8", StartTime{}, false},
		{"12345", StartTime{}, false},
		{"ab:cd", StartTime{}, false},
		{"8:5", StartTime{}, false}, // single-digit minutes rejected
		{"выходной", StartTime{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseWorktimeStart(tc.in)
			if ok != tc.ok {
				t.Fatalf("ParseWorktimeStart(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("ParseWorktimeStart(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}
