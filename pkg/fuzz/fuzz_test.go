package fuzz

import "testing"

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"kohtunik", "kohtunik", 100},
		{"", "", 100},
		{"abc", "", 0},
		{"abcd", "abce", 75},
		{"this is a test", "this is a test!", 97},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		if got := Ratio(tt.a, tt.b); got != tt.want {
			t.Errorf("Ratio(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"sundija", "kohtunik"},
		{"õpetaja", "opetaja"},
		{"linnapea", "linna pea"},
	}
	for _, p := range pairs {
		if Ratio(p[0], p[1]) != Ratio(p[1], p[0]) {
			t.Errorf("Ratio(%q, %q) not symmetric", p[0], p[1])
		}
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"this is a test", "this is a test!", 100},
		{"sundija", "kohtunik sundija", 100},
		{"kohtunik sundija", "sundija", 100},
		{"abc", "", 0},
		{"", "", 100},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		if got := PartialRatio(tt.a, tt.b); got != tt.want {
			t.Errorf("PartialRatio(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPartialRatio_ClippedWindow(t *testing.T) {
	// "xkoh" overhangs the start of "kohus"; the clipped window "koh" wins.
	if got := PartialRatio("xkoh", "kohus"); got != 86 {
		t.Errorf("PartialRatio = %d, want 86", got)
	}
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"Richter", "richter", 100},
		{"fuzzy wuzzy was a bear", "fuzzy fuzzy was a bear", 100},
		{"Richter, Schöffe", "schöffe richter", 100},
		{"", "richter", 0},
		{"...", "richter", 0},
		{"der Richter", "die Richterin", 83},
		// Latin-1 letters are deleted before tokenizing.
		{"Bürgermeister", "Burgermeister", 96},
		{"päev", "põev", 100},
		{"ö ü", "Ä", 0},
		{"Šveits", "šveits", 100},
	}
	for _, tt := range tests {
		if got := TokenSetRatio(tt.a, tt.b); got != tt.want {
			t.Errorf("TokenSetRatio(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Richter, Schöffe!", "richter  schöffe"},
		{"  ABC  ", "abc"},
		{"„Vogt“", "vogt"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Process(tt.input); got != tt.want {
			t.Errorf("Process(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestASCIIOnly(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Bürgermeister", "Brgermeister"},
		{"õpetaja", "petaja"},
		{"šveits žürii", "šveits žrii"},
		{"„Vogt“", "„Vogt“"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ASCIIOnly(tt.in); got != tt.want {
			t.Errorf("ASCIIOnly(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
