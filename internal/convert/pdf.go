// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrNoText is returned when a PDF has no extractable text layer, e.g. a
// scanned document.
var ErrNoText = errors.New("no text content found in PDF")

// kernGap is the TJ displacement (thousandths of an em) beyond which a gap
// between two strings is read as a word space.
const kernGap = 200

// PDFConverter reads a PDF's text layer with pdfcpu. Output keeps the line
// structure of the content streams and separates pages with blank lines.
type PDFConverter struct {
	conf   *model.Configuration
	logger *slog.Logger
}

// NewPDFConverter returns a converter with pdfcpu's default configuration.
func NewPDFConverter() *PDFConverter {
	return &PDFConverter{
		conf:   model.NewDefaultConfiguration(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger used for per-page diagnostics.
func (p *PDFConverter) WithLogger(l *slog.Logger) *PDFConverter {
	p.logger = l
	return p
}

// Convert extracts the text of every page of the PDF at path.
func (p *PDFConverter) Convert(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", path, err)
	}
	defer f.Close()

	pdf, err := api.ReadValidateAndOptimize(f, p.conf)
	if err != nil {
		return "", fmt.Errorf("reading PDF %s: %w", path, err)
	}

	var pages []string
	for pageNr := 1; pageNr <= pdf.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r, err := pdfcpu.ExtractPageContent(pdf, pageNr)
		if err != nil {
			p.logger.Debug("page content unavailable", "path", path, "page", pageNr, "err", err)
			continue
		}
		if r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			p.logger.Debug("page content unreadable", "path", path, "page", pageNr, "err", err)
			continue
		}
		if s := streamText(data); s != "" {
			pages = append(pages, s)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("%s: %w", path, ErrNoText)
	}
	return strings.Join(pages, "\n\n"), nil
}

// streamText pulls the shown text out of a page content stream. It follows
// the text-showing operators (Tj, TJ, ' and ") and turns line moves (T*,
// Td, TD and a changed Tm baseline) into newlines.
func streamText(data []byte) string {
	s := &scanner{data: data}
	var out strings.Builder
	var strs []string
	var nums []float64
	inArray := false
	lastY, haveY := 0.0, false

	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}

	for {
		tok, kind := s.next()
		if kind == tokEOF {
			break
		}
		switch kind {
		case tokString:
			strs = append(strs, tok)
		case tokNumber:
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				continue
			}
			if inArray {
				if v < -kernGap {
					strs = append(strs, " ")
				}
				continue
			}
			nums = append(nums, v)
		case tokArrayOpen:
			inArray = true
		case tokArrayClose:
			inArray = false
		case tokOperator:
			switch tok {
			case "Tj", "TJ":
				out.WriteString(strings.Join(strs, ""))
			case "'", `"`:
				newline()
				out.WriteString(strings.Join(strs, ""))
			case "T*":
				newline()
			case "Td", "TD":
				if len(nums) >= 2 {
					switch {
					case nums[len(nums)-1] != 0:
						newline()
					case nums[len(nums)-2] > 0 && out.Len() > 0:
						out.WriteByte(' ')
					}
				}
			case "Tm":
				if len(nums) >= 6 {
					y := nums[len(nums)-1]
					if haveY && y != lastY {
						newline()
					} else if haveY && out.Len() > 0 {
						out.WriteByte(' ')
					}
					lastY, haveY = y, true
				}
			case "ID":
				s.skipInlineImage()
			}
			strs = strs[:0]
			nums = nums[:0]
		}
	}

	return tidyLines(out.String())
}

// tidyLines collapses runs of spaces, trims every line and drops blank lines.
func tidyLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokArrayOpen
	tokArrayClose
	tokOperator
	tokOther
)

// scanner tokenizes a PDF content stream just far enough to find text.
type scanner struct {
	data []byte
	pos  int
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func (s *scanner) next() (string, tokenKind) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pos++
			return s.literal(), tokString
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return "<<", tokOther
			}
			s.pos++
			return s.hex(), tokString
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return ">>", tokOther
		case c == '[':
			s.pos++
			return "[", tokArrayOpen
		case c == ']':
			s.pos++
			return "]", tokArrayClose
		case c == '/':
			start := s.pos
			s.pos++
			s.word()
			return string(s.data[start:s.pos]), tokOther
		case c == '\'' || c == '"':
			s.pos++
			return string(c), tokOperator
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := s.pos
			s.word()
			return string(s.data[start:s.pos]), tokNumber
		case isDelim(c):
			s.pos++
		default:
			start := s.pos
			s.word()
			return string(s.data[start:s.pos]), tokOperator
		}
	}
	return "", tokEOF
}

func (s *scanner) word() {
	for s.pos < len(s.data) && !isSpace(s.data[s.pos]) && !isDelim(s.data[s.pos]) {
		s.pos++
	}
}

// literal reads a parenthesized string whose opening paren was consumed.
// Nested balanced parens are part of the string.
func (s *scanner) literal() string {
	var raw []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return decodeText(raw)
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
				if e == '\r' && s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					raw = append(raw, byte(v))
				} else {
					raw = append(raw, e)
				}
			}
		case '(':
			depth++
			raw = append(raw, c)
		case ')':
			depth--
			if depth == 0 {
				return decodeText(raw)
			}
			raw = append(raw, c)
		default:
			raw = append(raw, c)
		}
	}
	return decodeText(raw)
}

// hex reads a hex string whose opening angle bracket was consumed.
func (s *scanner) hex() string {
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		c := s.data[s.pos]
		if !isSpace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		raw = append(raw, byte(v))
	}
	return decodeText(raw)
}

// skipInlineImage advances past the binary data of an inline image.
func (s *scanner) skipInlineImage() {
	for s.pos+2 < len(s.data) {
		if isSpace(s.data[s.pos]) && s.data[s.pos+1] == 'E' && s.data[s.pos+2] == 'I' &&
			(s.pos+3 == len(s.data) || isSpace(s.data[s.pos+3])) {
			s.pos += 3
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

// decodeText maps string bytes to text. UTF-16BE strings carry a byte order
// mark; everything else is read as Latin-1 with control characters dropped.
func decodeText(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		u := make([]uint16, 0, len(raw)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u = append(u, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return string(utf16.Decode(u))
	}
	var b strings.Builder
	for _, c := range raw {
		switch {
		case c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(' ')
		case c < 0x20 || c == 0x7f:
		default:
			b.WriteRune(rune(c))
		}
	}
	return b.String()
}
