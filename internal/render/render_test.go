package render

import (
	"reflect"
	"strings"
	"testing"
)

func TestPage_Lines(t *testing.T) {
	html := `
		<html>
			<head><title>Luminata</title><style>.x{}</style></head>
			<body>
				<h2>Entradas</h2>
				<ul>
					<li><div><span>ENTRADA</span> 10&euro;</div><div>10 €</div><p>1 copa</p></li>
					<li>VIP 2 COPAS<br>Agotada</li>
				</ul>
				<script>var x = "- ENTRADA FALSA";</script>
			</body>
		</html>`

	page, err := ParseString(html)
	if err != nil {
		t.Fatalf("ParseString() error: %v", err)
	}

	want := []string{
		"# Entradas",
		"- ENTRADA 10€",
		"10 €",
		"1 copa",
		"- VIP 2 COPAS",
		"Agotada",
	}
	if got := page.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lines() =\n%q\nwant\n%q", got, want)
	}
}

func TestPage_Scripts(t *testing.T) {
	html := `<html><body>
		<script type="application/ld+json">{"@type":"Event"}</script>
		<script type="APPLICATION/LD+JSON"> [] </script>
		<script type="application/json">{"a":1}</script>
		<script type="application/ld+json">   </script>
	</body></html>`

	page, err := ParseString(html)
	if err != nil {
		t.Fatalf("ParseString() error: %v", err)
	}

	if got := page.Scripts("application/ld+json"); len(got) != 2 {
		t.Errorf("Scripts(ld+json) returned %d blocks, want 2: %q", len(got), got)
	}
	if got := page.Scripts("application/json"); len(got) != 1 || got[0] != `{"a":1}` {
		t.Errorf("Scripts(json) = %q", got)
	}
}

func TestPage_MetaContent(t *testing.T) {
	page, err := Parse(strings.NewReader(`<html><head><meta property="og:image" content=" https://img.test/a.jpg "></head></html>`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := page.MetaContent("og:image"); got != "https://img.test/a.jpg" {
		t.Errorf("MetaContent() = %q", got)
	}
	if got := page.MetaContent("og:title"); got != "" {
		t.Errorf("MetaContent(missing) = %q, want empty", got)
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("- ENTRADA 10€\r\n10 €\n1 copa")
	if len(got) != 3 || got[1] != "10 €" {
		t.Errorf("SplitLines() = %q", got)
	}
}
