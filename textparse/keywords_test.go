package textparse

import "testing"

func TestIsProtestEvent(t *testing.T) {
	// WHAT: Keyword detection is case-insensitive and substring-based.
	// WHY: Source payloads arrive in every casing; a miss drops a real event.
	cases := []struct {
		text string
		want bool
	}{
		{"March for Climate Justice", true},
		{"PROTEST downtown this Saturday", true},
		{"Workers on strike at the plant", true},
		{"Candlelight vigil for the victims", true},
		{"Annual charity bake sale", false},
		{"City council budget meeting", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsProtestEvent(tc.text); got != tc.want {
			t.Errorf("IsProtestEvent(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCategorizeEvent_FirstMatchWins(t *testing.T) {
	// WHAT: Classification checks causes in declaration order and stops at
	// the first keyword hit.
	// WHY: The same input must always land in the same category, even when
	// several categories' keywords appear in the text.
	cases := []struct {
		text string
		want string
	}{
		{"Black Lives Matter March downtown", CauseRacialJustice},
		{"Fight for $15 minimum wage rally", CauseLabor},
		{"Climate strike at city hall", CauseClimate}, // climate outranks labor's "strike"
		{"Defend Roe rally", CauseReproductive},
		{"No human is illegal: march against ICE raids", CauseImmigration},
		{"Pride parade and rally", CauseLGBTQ},
		{"Get out the vote rally", CausePolitical},
		{"Neighborhood gathering", CauseOther},
		{"", CauseOther},
	}
	for _, tc := range cases {
		if got := CategorizeEvent(tc.text); got != tc.want {
			t.Errorf("CategorizeEvent(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestCategorizeEvent_Deterministic(t *testing.T) {
	// WHAT: Repeated classification of identical text returns identical results.
	// WHY: The cascade is ordered; any nondeterminism would split one real
	// event across causes between scrape runs.
	text := "March for climate and racial justice, union workers welcome"
	first := CategorizeEvent(text)
	for i := 0; i < 10; i++ {
		if got := CategorizeEvent(text); got != first {
			t.Fatalf("run %d: got %q, want %q", i, got, first)
		}
	}
	if first != CauseClimate {
		t.Errorf("got %q, want %q (earliest matching rule)", first, CauseClimate)
	}
}

func TestCauses_OtherLast(t *testing.T) {
	// WHAT: The cause list ends with "other" and contains no duplicates.
	// WHY: The causes endpoint renders this list; "other" is the fallback bucket.
	causes := Causes()
	if causes[len(causes)-1] != CauseOther {
		t.Errorf("last cause = %q, want %q", causes[len(causes)-1], CauseOther)
	}
	seen := make(map[string]bool)
	for _, c := range causes {
		if seen[c] {
			t.Errorf("duplicate cause %q", c)
		}
		seen[c] = true
		if !ValidCause(c) {
			t.Errorf("ValidCause(%q) = false", c)
		}
	}
	if ValidCause("bogus") {
		t.Error("ValidCause(bogus) = true")
	}
}
