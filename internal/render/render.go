// Package render turns fetched HTML into the plain-text view the ticket
// parser and the last-resort discovery strategy read.
//
// The output imitates a markdown rendering of the page: one line per block
// element, list items led by "- ", headings led by "# ".
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is a parsed HTML page plus its raw markup.
type Page struct {
	Doc *goquery.Document
	Raw string
}

// Parse reads an HTML page.
func Parse(r io.Reader) (*Page, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading page: %w", err)
	}
	return ParseString(string(raw))
}

// ParseString parses HTML held in memory.
func ParseString(raw string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return &Page{Doc: doc, Raw: raw}, nil
}

// Lines renders the page body as text lines.
func (p *Page) Lines() []string {
	return Text(p.Doc.Find("body"))
}

// Scripts returns the bodies of every <script> whose type attribute equals typ.
func (p *Page) Scripts(typ string) []string {
	var out []string
	p.Doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		t, _ := s.Attr("type")
		if !strings.EqualFold(strings.TrimSpace(t), typ) {
			return
		}
		if body := strings.TrimSpace(s.Text()); body != "" {
			out = append(out, body)
		}
	})
	return out
}

// MetaContent returns the content of the first <meta property=prop>.
func (p *Page) MetaContent(prop string) string {
	v, _ := p.Doc.Find(fmt.Sprintf(`meta[property=%q]`, prop)).First().Attr("content")
	return strings.TrimSpace(v)
}

// SplitLines splits an already-rendered text or markdown document.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Svg: true, atom.Head: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Table: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Button: true, atom.Form: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figure: true, atom.Figcaption: true,
}

var headings = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// Text renders a selection as text lines.
func Text(sel *goquery.Selection) []string {
	w := &lineWriter{}
	for _, n := range sel.Nodes {
		w.walk(n)
	}
	w.flush()
	return w.lines
}

type lineWriter struct {
	lines  []string
	cur    strings.Builder
	prefix string
}

func (w *lineWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.cur.WriteString(n.Data)
		w.cur.WriteByte(' ')
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			w.flush()
			return
		}
	case html.DocumentNode:
	default:
		return
	}

	block := n.Type == html.ElementNode && blocks[n.DataAtom]
	if block {
		w.flush()
		switch {
		case n.DataAtom == atom.Li:
			w.prefix = "- "
		case headings[n.DataAtom]:
			w.prefix = "# "
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if block {
		w.flush()
	}
}

// flush ends the current line. A pending prefix survives empty lines so a
// list item whose first child is a wrapper still gets its marker.
func (w *lineWriter) flush() {
	text := strings.Join(strings.Fields(w.cur.String()), " ")
	w.cur.Reset()
	if text == "" {
		return
	}
	w.lines = append(w.lines, w.prefix+text)
	w.prefix = ""
}
