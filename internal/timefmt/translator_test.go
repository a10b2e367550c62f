package timefmt

import (
	"errors"
	"testing"
	"time"
)

func TestParseDisambiguatesMonthAndMinute(t *testing.T) {
	t.Parallel()

	tr := MustNew("DD.MM.YYYY", "HH:MM", "UTC")
	got, err := tr.Parse("05.03.2025 14:07")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2025, time.March, 5, 14, 7, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseConvertsZoneToUTC(t *testing.T) {
	t.Parallel()

	cases := []struct {
		zone string
		want time.Time
	}{
		{"UTC", time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"UTC+3", time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)},
		{"GMT-05:30", time.Date(2025, 1, 1, 15, 30, 0, 0, time.UTC)},
		{"+02:00", time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)},
		{"Europe/Moscow", time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.zone, func(t *testing.T) {
			tr, err := New("YYYY-MM-DD", "HH:MM", tc.zone)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			got, err := tr.Parse("2025-01-01 10:00")
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !got.Equal(tc.want) || got.Location() != time.UTC {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		date, clock, zone, text string
	}{
		{"YYYY-MM-DD", "HH:MM", "UTC", "2025-01-01 10:00"},
		{"DD.MM.YYYY", "HH:MM", "Europe/Moscow", "31.12.2025 23:59"},
		{"MM/DD/YY", "H:MM", "America/New_York", "07/04/26 9:05"},
		{"D.M.YYYY", "HH:mm:ss", "UTC+5:30", "1.2.2027 00:00:30"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			tr := MustNew(tc.date, tc.clock, tc.zone)
			at, err := tr.Parse(tc.text)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := tr.Render(at); got != tc.text {
				t.Fatalf("render(parse(%q)) = %q", tc.text, got)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tr := MustNew("DD.MM.YYYY", "HH:MM", "UTC")
	for _, in := range []string{
		"",
		"05.03.2025",
		"05.03.2025 14:7",
		"5.03.2025 14:07",
		"05-03-2025 14:07",
		"30.02.2025 10:00",
		"05.13.2025 10:00",
		"05.03.2025 24:00",
		"05.03.2025 10:60",
		"05.03.202514:07",
		"05.03.2025 14:07 extra",
	} {
		_, err := tr.Parse(in)
		var fe *FormatError
		if !errors.As(err, &fe) {
			t.Fatalf("Parse(%q): want FormatError, got %v", in, err)
		}
		if fe.Layout != "DD.MM.YYYY HH:MM" || fe.Example == "" {
			t.Fatalf("Parse(%q): incomplete error %+v", in, fe)
		}
	}
}

func TestParseRejectsDSTGap(t *testing.T) {
	t.Parallel()

	tr := MustNew("YYYY-MM-DD", "HH:MM", "Europe/Berlin")
	if _, err := tr.Parse("2025-03-30 02:30"); err == nil {
		t.Fatalf("non-existent local time accepted")
	}
}

func TestExample(t *testing.T) {
	t.Parallel()

	tr := MustNew("YYYY-MM-DD", "HH:MM", "UTC")
	now := time.Date(2025, 1, 1, 9, 59, 42, 0, time.UTC)
	if got := tr.Example(now); got != "2025-01-01 10:59" {
		t.Fatalf("example %q", got)
	}
}

func TestFormatErrorExampleFollowsClock(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 15, 0, 0, time.UTC)
	tr := MustNew("DD.MM.YYYY", "HH:MM", "UTC").WithClock(func() time.Time { return now })
	_, err := tr.Parse("tomorrow")
	var fe *FormatError
	if !errors.As(err, &fe) || fe.Example != "01.06.2025 09:15" {
		t.Fatalf("example not taken from the clock: %+v", err)
	}
}

func TestValidatePatterns(t *testing.T) {
	t.Parallel()

	good := [][2]string{{"YYYY-MM-DD", "HH:MM"}, {"DD.MM.YY", "H:mm"}, {"M/D/YYYY", "HH:MM:SS"}}
	for _, g := range good {
		if err := ValidateDatePattern(g[0]); err != nil {
			t.Fatalf("date %q: %v", g[0], err)
		}
		if err := ValidateTimePattern(g[1]); err != nil {
			t.Fatalf("time %q: %v", g[1], err)
		}
	}
	for _, bad := range []string{"", "YYYY-MM", "DD.MM.YYY", "DD.MM.YYYY.DD", "DMYYYY", "QQ.MM.YYYY"} {
		if ValidateDatePattern(bad) == nil {
			t.Fatalf("date pattern %q accepted", bad)
		}
	}
	for _, bad := range []string{"", "HH", "MM", "HH:MM:S", "HHMM:SS x"} {
		if ValidateTimePattern(bad) == nil {
			t.Fatalf("time pattern %q accepted", bad)
		}
	}
}

func TestLoadZone(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "utc", "UTC+3", "utc-12", "+14:00", "GMT+0530", "Asia/Tokyo"} {
		if _, err := LoadZone(name); err != nil {
			t.Fatalf("LoadZone(%q): %v", name, err)
		}
	}
	for _, name := range []string{"UTC+15", "Mars/Olympus", "+03:75"} {
		if _, err := LoadZone(name); err == nil {
			t.Fatalf("LoadZone(%q) accepted", name)
		}
	}
	loc, _ := LoadZone("UTC-05:30")
	if _, off := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone(); off != -(5*3600 + 1800) {
		t.Fatalf("offset %d", off)
	}
}
