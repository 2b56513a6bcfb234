package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const pptxPresentationPart = "ppt/presentation.xml"

var slidePartRE = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PPTX extracts slide text in slide-then-shape order: for every slide, the
// text of every shape with a text body is appended, newline-separated.
// Slides are visited in numeric part order so slide10 follows slide9.
func PPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	hasPresentation := false
	type slidePart struct {
		n int
		f *zip.File
	}
	var slides []slidePart
	for _, f := range zr.File {
		if f.Name == pptxPresentationPart {
			hasPresentation = true
		}
		if m := slidePartRE.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slidePart{n: n, f: f})
		}
	}
	if !hasPresentation {
		return "", errors.New("missing " + pptxPresentationPart)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var b strings.Builder
	for _, s := range slides {
		rc, err := s.f.Open()
		if err != nil {
			return "", err
		}
		err = slideText(rc, &b)
		rc.Close()
		if err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// slideText appends the text of each shape on one slide. A shape's text body
// (txBody) holds a:p paragraphs whose runs carry a:t elements; paragraphs
// are joined with newlines and each shape contributes a trailing newline.
func slideText(r io.Reader, b *strings.Builder) error {
	dec := xml.NewDecoder(r)
	var (
		inBody  bool
		inText  bool
		lines   []string
		current strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "txBody":
				inBody = true
				lines = lines[:0]
			case "p":
				if inBody {
					current.Reset()
				}
			case "t":
				inText = inBody
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "txBody":
				b.WriteString(strings.Join(lines, "\n"))
				b.WriteByte('\n')
				inBody = false
			case "p":
				if inBody {
					lines = append(lines, current.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
}
