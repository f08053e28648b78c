package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Super Mario Galaxy", "Super Mario Galaxy"},
		{"Legend: Special/Edition", "Legend- Special-Edition"},
		{`What? "Quotes" <here>`, "What Quotes here"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.input); got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"super mario galaxy", "Super Mario Galaxy"},
		{"Xenoblade  Chronicles", "Xenoblade Chronicles"},
		{"WarioWare", "WarioWare"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := DisplayTitle(tc.input); got != tc.want {
			t.Fatalf("DisplayTitle(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
