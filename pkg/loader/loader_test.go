package loader

import (
	"context"
	"errors"
	"testing"
)

type stubLoader struct {
	text  string
	calls int
}

func (s *stubLoader) GetText(ctx context.Context, doc Document) ([]byte, error) {
	s.calls++
	return []byte(s.text), nil
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		path string
		want DocumentType
	}{
		{"policy.txt", DocumentTypeText},
		{"README", DocumentTypeText},
		{"docs/Travel Policy.MD", DocumentTypeMarkdown},
		{"a/b/c.markdown", DocumentTypeMarkdown},
		{"handbook.pdf", DocumentTypePDF},
		{"handbook.DOCX", DocumentTypeDOCX},
		{"index.htm", DocumentTypeHTML},
		{"https://example.com/policy.pdf", DocumentTypeURL},
		{"HTTP://example.com", DocumentTypeURL},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectType(tt.path)
			if err != nil {
				t.Fatalf("DetectType(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("DetectType(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	for _, path := range []string{"sheet.xlsx", "legacy.doc", "scan.png"} {
		if _, err := DetectType(path); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("DetectType(%q) error = %v, want ErrUnsupportedType", path, err)
		}
	}
}

func TestDocumentGetText(t *testing.T) {
	src := &stubLoader{text: "# Policy\r\n\r\n\r\n\r\nText   \r\n"}
	doc, err := NewDocument("p1", "policy.md", src)
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	if doc.Type != DocumentTypeMarkdown {
		t.Errorf("doc.Type = %v, want %v", doc.Type, DocumentTypeMarkdown)
	}

	got, err := doc.GetText(context.Background())
	if err != nil {
		t.Fatalf("GetText() error = %v", err)
	}
	if want := "# Policy\n\nText\n"; got != want {
		t.Errorf("GetText() = %q, want %q", got, want)
	}

	empty := Document{Path: "x.txt"}
	if _, err := empty.GetText(context.Background()); err == nil {
		t.Error("GetText() without loader should fail")
	}
}

func TestRouter(t *testing.T) {
	pdf := &stubLoader{text: "pdf"}
	fallback := &stubLoader{text: "raw"}
	r := NewRouter(fallback, map[DocumentType]Loader{DocumentTypePDF: pdf})

	got, _ := r.GetText(context.Background(), Document{Path: "a.pdf", Type: DocumentTypePDF})
	if string(got) != "pdf" {
		t.Errorf("GetText(pdf) = %q, want %q", got, "pdf")
	}
	got, _ = r.GetText(context.Background(), Document{Path: "a.md", Type: DocumentTypeMarkdown})
	if string(got) != "raw" {
		t.Errorf("GetText(md) = %q, want %q", got, "raw")
	}

	strict := NewRouter(nil, map[DocumentType]Loader{DocumentTypePDF: pdf})
	if _, err := strict.GetText(context.Background(), Document{Type: DocumentTypeHTML}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("GetText(html) error = %v, want ErrUnsupportedType", err)
	}
}
