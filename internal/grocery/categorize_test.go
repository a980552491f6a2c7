package grocery

import "testing"

func TestCategorizeExactMatch(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"milk", "Dairy"},
		{"eggs", "Protein"},
		{"oats", "Grains"},
		{"coffee", "Beverages"},
		{"spinach", "Produce"},
	}
	for _, tt := range tests {
		if got := Categorize(tt.input); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCategorizeKeywordMatch(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"skinless chicken breast", "Protein"},
		{"frozen blueberries", "Frozen"},
		{"vanilla whey isolate", "Supplements"},
		{"unsweetened almond milk", "Dairy"},
		{"natural peanut butter", "Pantry"},
		{"steel cut oats", "Grains"},
		{"cherry tomatoes", "Produce"},
	}
	for _, tt := range tests {
		if got := Categorize(tt.input); got != tt.want {
			t.Errorf("Categorize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCategorizeCaseAndFallback(t *testing.T) {
	if got := Categorize("  MILK "); got != "Dairy" {
		t.Errorf("Categorize(\"  MILK \") = %q, want Dairy", got)
	}
	if got := Categorize(""); got != Fallback {
		t.Errorf("empty name = %q, want %q", got, Fallback)
	}
	if got := Categorize("xylophone"); got != Fallback {
		t.Errorf("unknown name = %q, want %q", got, Fallback)
	}
}
