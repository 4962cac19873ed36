package doc

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	xml := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(xml)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseDocx(t *testing.T) {
	body := `<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Travel Policy</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">Trips above </w:t></w:r><w:r><w:t>5000 EUR</w:t></w:r>` +
		`<w:del><w:r><w:delText>deleted</w:delText><w:t>gone</w:t></w:r></w:del>` +
		`<w:r><w:t> need approval.</w:t></w:r></w:p>` +
		`<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Roles</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Limit</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p><w:r><w:t>CFO</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>any</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`

	got, err := parseDocx(buildDocx(t, body))
	if err != nil {
		t.Fatalf("parseDocx() error = %v", err)
	}

	want := "# Travel Policy\nTrips above 5000 EUR need approval.\n## Roles\nRole\tLimit\nCFO\tany\n\n"
	if string(got) != want {
		t.Errorf("parseDocx() = %q, want %q", got, want)
	}
}

func TestParseDocxErrors(t *testing.T) {
	if _, err := parseDocx([]byte("not a zip")); err == nil {
		t.Error("parseDocx(garbage) should fail")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.Create("word/styles.xml")
	zw.Close()
	_, err := parseDocx(buf.Bytes())
	if err == nil || !strings.Contains(err.Error(), "document.xml not found") {
		t.Errorf("parseDocx(no document.xml) error = %v", err)
	}
}

func TestGetTextFromIO(t *testing.T) {
	got, err := GetTextFromIO(bytes.NewReader(buildDocx(t, `<w:p><w:r><w:t>Hello</w:t></w:r></w:p>`)))
	if err != nil {
		t.Fatalf("GetTextFromIO() error = %v", err)
	}
	if string(got) != "Hello\n" {
		t.Errorf("GetTextFromIO() = %q, want %q", got, "Hello\n")
	}
}
