package domain

import "testing"

func TestTermCodeToString(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{1252, "Fall 2024"},
		{1254, "Spring 2025"},
		{1256, "Summer 2025"},
		{1242, "Fall 2023"},
		{1248, UnknownTerm},
		{1250, UnknownTerm},
		{0, UnknownTerm},
		{-1252, UnknownTerm},
	}
	for _, tc := range cases {
		if got := TermCodeToString(tc.code); got != tc.want {
			t.Errorf("TermCodeToString(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestTermCodeFallPrecedesSpring(t *testing.T) {
	// 1252 and 1254 are the two halves of one academic year.
	if TermCodeToString(1252) == TermCodeToString(1254) {
		t.Fatal("fall and spring must differ")
	}
	if TermCodeToString(1252) != "Fall 2024" || TermCodeToString(1254) != "Spring 2025" {
		t.Errorf("unexpected pair %q / %q", TermCodeToString(1252), TermCodeToString(1254))
	}
	for i := 0; i < 3; i++ {
		if TermCodeToString(1252) != "Fall 2024" {
			t.Fatal("mapping must be deterministic")
		}
	}
}
