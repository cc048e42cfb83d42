package geo

import "testing"

func TestLevelChild(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level Level
		want  Level
	}{
		{LevelCountry, LevelProvince},
		{LevelProvince, LevelZone},
		{LevelZone, ""},
		{Level("bogus"), ""},
	}
	for _, tc := range cases {
		if got := tc.level.Child(); got != tc.want {
			t.Errorf("Child(%q) = %q, want %q", tc.level, got, tc.want)
		}
	}
}
