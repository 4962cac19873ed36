package storage

import "testing"

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"document", DocumentKey("abc", "Travel Policy.PDF"), "documents/abc.pdf"},
		{"document without ext", DocumentKey("abc", "README"), "documents/abc"},
		{"graph", GraphKey("g1"), "graphs/g1.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("key = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestGraphIDFromKey(t *testing.T) {
	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"graphs/g1.json", "g1", true},
		{"graphs/.json", "", false},
		{"graphs/nested/g1.json", "", false},
		{"documents/g1.json", "", false},
		{"graphs/g1.txt", "", false},
	}
	for _, tt := range tests {
		got, ok := graphIDFromKey(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("graphIDFromKey(%q) = %q, %v, want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("graphs/g1.json"); got != "application/json" {
		t.Errorf("contentType(json) = %q, want application/json", got)
	}
	if got := contentType("blob"); got != "application/octet-stream" {
		t.Errorf("contentType(blob) = %q, want application/octet-stream", got)
	}
}
