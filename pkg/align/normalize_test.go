package align

import (
	"strings"
	"sync"
	"testing"
)

func TestNormalizeStripPunct(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Kohtunik", "kohtunik"},
		{"  Kohtu-nik, ", "kohtunik"},
		{"der  Richter;\tSchöffe", "der richter schöffe"},
		{"Õpetaja", "õpetaja"},
		{"(linna)pea!", "linnapea"},
		{"„Vogt“", "„vogt“"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		got := NormalizeStripPunct(tt.input)
		if got != tt.want {
			t.Errorf("NormalizeStripPunct(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeStripPunct_ComposesDecomposed(t *testing.T) {
	decomposed := "O\u0303petaja"
	if got := NormalizeStripPunct(decomposed); got != "õpetaja" {
		t.Errorf("NormalizeStripPunct(%q) = %q, want õpetaja", decomposed, got)
	}
}

func TestNormalizeStripAccents(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Õpetaja", "opetaja"},
		{"Schöffe, Richter", "schoffe richter"},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizeStripAccents(tt.input)
		if got != tt.want {
			t.Errorf("NormalizeStripAccents(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeNone(t *testing.T) {
	for _, input := range []string{"Kohtunik", "  a, b ", ""} {
		got := NormalizeNone(input)
		if got != input {
			t.Errorf("NormalizeNone(%q) = %q, want unchanged", input, got)
		}
	}
}

func TestGetNormalizer(t *testing.T) {
	tests := []struct {
		mode  string
		input string
		want  string
	}{
		{"strip_punct", "Õpetaja!", "õpetaja"},
		{"strip_accents", "Õpetaja!", "opetaja"},
		{"none", "Õpetaja!", "Õpetaja!"},
		{"", "Õpetaja!", "õpetaja"},             // default = strip_punct
		{"unknown_mode", "Õpetaja!", "õpetaja"}, // fallback = strip_punct
	}
	for _, tt := range tests {
		fn := GetNormalizer(tt.mode)
		got := fn(tt.input)
		if got != tt.want {
			t.Errorf("GetNormalizer(%q)(%q) = %q, want %q", tt.mode, tt.input, got, tt.want)
		}
	}
}

func TestValidMode(t *testing.T) {
	for _, mode := range []string{"", ModeStripPunct, ModeStripAccents, ModeNone} {
		if !ValidMode(mode) {
			t.Errorf("ValidMode(%q) = false, want true", mode)
		}
	}
	for _, mode := range []string{"strip_acents", "STRIP_PUNCT", "nfc"} {
		if ValidMode(mode) {
			t.Errorf("ValidMode(%q) = true, want false", mode)
		}
	}
}

func TestNormalizers_Concurrent(t *testing.T) {
	// Long, punctuated, non-ASCII input forces the transform chain through
	// several buffer refills per call.
	input := strings.Repeat("„Õpetaja“, Bürgermeister; (linna)pea! O\u0303ue-äär... ", 40)
	wantPunct := NormalizeStripPunct(input)
	wantAccents := NormalizeStripAccents(input)

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if got := NormalizeStripPunct(input); got != wantPunct {
					errs <- "strip_punct result differs under concurrency"
					return
				}
				if got := NormalizeStripAccents(input); got != wantAccents {
					errs <- "strip_accents result differs under concurrency"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	if strings.ContainsAny(wantPunct, ",;!.()-") {
		t.Errorf("punctuation left in %q", wantPunct[:40])
	}
	if !strings.Contains(wantAccents, "burgermeister linnapea oueaar") {
		t.Errorf("strip_accents = %q", wantAccents[:60])
	}
}
