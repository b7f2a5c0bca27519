package activity

import "testing"

func TestLookup(t *testing.T) {
	c := NewCatalog(nil)
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"coe", "Ara-Kara, City of Echoes", true},
		{"  PSF ", "Priory of the Sacred Flame", true},
		{"the dawnbreaker", "The Dawnbreaker", true},
		{"Operation: Floodgate", "Operation: Floodgate", true},
		{"sg", "Tazavesh the Veiled Market, So'leah's Gambit", true},
		{"karazhan", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := c.Lookup(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNamesSorted(t *testing.T) {
	names := NewCatalog(nil).Names()
	if len(names) != 8 {
		t.Fatalf("len(Names()) = %d, want 8", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
