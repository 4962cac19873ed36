package loader

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \n\t\n", ""},
		{"crlf", "a\r\nb\rc", "a\nb\nc\n"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb\n"},
		{"trailing blanks", "a  \t\nb\t", "a\nb\n"},
		{"form feed", "page one\fpage two", "page one\npage two\n"},
		{"bom", "\ufeff# Title", "# Title\n"},
		{"nfc", "Gescha\u0308ft", "Gesch\u00e4ft\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText([]byte(tt.in)); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
