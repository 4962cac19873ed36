package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

func parseDocx(content []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("document.xml not found in docx")
	}
	if docFile.UncompressedSize64 > docXMLMax {
		return nil, fmt.Errorf("document.xml too large: %d bytes",
			docFile.UncompressedSize64)
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, int64(docXMLMax)))

	var sb strings.Builder
	var para strings.Builder
	type state struct {
		inText    bool
		delDepth  int
		insideTbl bool
		cellIdx   int
		heading   int
	}
	st := state{}

	// Paragraphs are buffered so heading styles can be rendered as
	// markdown headings once the paragraph is complete.
	flushPara := func() {
		text := para.String()
		para.Reset()
		if st.heading > 0 && !st.insideTbl && strings.TrimSpace(text) != "" {
			sb.WriteString(strings.Repeat("#", st.heading))
			sb.WriteByte(' ')
			sb.WriteString(strings.TrimSpace(text))
		} else {
			sb.WriteString(text)
		}
		st.heading = 0
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "del":
				st.delDepth++
			case "pStyle":
				st.heading = headingLevel(t.Attr)
			case "t":
				st.inText = true
			case "tab":
				if st.delDepth == 0 {
					para.WriteRune('\t')
				}
			case "br", "cr":
				if st.delDepth == 0 {
					para.WriteByte('\n')
				}
			case "noBreakHyphen":
				if st.delDepth == 0 {
					para.WriteRune('-')
				}
			case "tbl":
				st.insideTbl = true
				st.cellIdx = 0
				if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
					sb.WriteByte('\n')
				}
			case "tr":
				st.cellIdx = 0
			case "tc":
				if st.insideTbl && st.delDepth == 0 {
					if st.cellIdx > 0 {
						sb.WriteRune('\t')
					}
					st.cellIdx++
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				st.inText = false
			case "p":
				if st.delDepth == 0 {
					flushPara()
					if !st.insideTbl {
						sb.WriteByte('\n')
					}
				}
			case "tr":
				if st.delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "tbl":
				st.insideTbl = false
				if st.delDepth == 0 {
					sb.WriteByte('\n')
				}
			case "del":
				if st.delDepth > 0 {
					st.delDepth--
				}
			}

		case xml.CharData:
			if st.delDepth != 0 || !st.inText {
				continue
			}
			para.Write(t)
		}
	}

	return []byte(sb.String()), nil
}

// headingLevel returns the level of a Heading1..Heading6 or Title style,
// or 0 for any other paragraph style.
func headingLevel(attrs []xml.Attr) int {
	for _, a := range attrs {
		if a.Name.Local != "val" {
			continue
		}
		style := strings.ToLower(a.Value)
		if style == "title" {
			return 1
		}
		if n, ok := strings.CutPrefix(style, "heading"); ok {
			lvl, err := strconv.Atoi(strings.TrimSpace(n))
			if err == nil && lvl >= 1 && lvl <= 6 {
				return lvl
			}
		}
	}
	return 0
}
