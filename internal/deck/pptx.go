package deck

import (
	"archive/zip"
	"embed"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
)

//go:embed templates/*.xml
var templateFS embed.FS

var templates = template.Must(template.New("pptx").Funcs(template.FuncMap{
	"x": escapeXML,
}).ParseFS(templateFS, "templates/*.xml"))

func escapeXML(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// part is one zip entry rendered from a template.
type part struct {
	path string
	tmpl string
	data any
}

// staticParts are the same in every package.
var staticParts = []part{
	{"ppt/slideMasters/slideMaster1.xml", "slide_master.xml", nil},
	{"ppt/slideMasters/_rels/slideMaster1.xml.rels", "slide_master_rels.xml", nil},
	{"ppt/slideLayouts/slideLayout1.xml", "slide_layout1.xml", nil},
	{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", "slide_layout_rels.xml", nil},
	{"ppt/slideLayouts/slideLayout2.xml", "slide_layout2.xml", nil},
	{"ppt/slideLayouts/_rels/slideLayout2.xml.rels", "slide_layout_rels.xml", nil},
	{"ppt/theme/theme1.xml", "theme.xml", nil},
}

type packageData struct {
	Title   string
	Created string
	Slides  []slideData
}

type slideData struct {
	Slide
	Num    int
	ID     int
	RelID  string
	Layout int
}

func newPackageData(d Deck, created time.Time) packageData {
	pd := packageData{
		Title:   d.Title,
		Created: created.UTC().Format(time.RFC3339),
		Slides:  make([]slideData, len(d.Slides)),
	}
	for i, s := range d.Slides {
		layout := 2
		if s.Cover {
			layout = 1
		}
		pd.Slides[i] = slideData{
			Slide: s,
			Num:   i + 1,
			ID:    256 + i,
			// rId1 and rId2 are the master and theme.
			RelID:  "rId" + strconv.Itoa(i+3),
			Layout: layout,
		}
	}
	return pd
}

// Render writes d as a PresentationML package.
func Render(w io.Writer, d Deck, created time.Time) error {
	if len(d.Slides) == 0 {
		return eris.New("pptx: deck has no slides")
	}
	pd := newPackageData(d, created)
	zw := zip.NewWriter(w)

	parts := []part{
		{"[Content_Types].xml", "content_types.xml", pd},
		{"_rels/.rels", "root_rels.xml", pd},
		{"docProps/core.xml", "core.xml", pd},
		{"docProps/app.xml", "app.xml", pd},
		{"ppt/presentation.xml", "presentation.xml", pd},
		{"ppt/_rels/presentation.xml.rels", "presentation_rels.xml", pd},
	}
	parts = append(parts, staticParts...)
	for _, s := range pd.Slides {
		n := strconv.Itoa(s.Num)
		parts = append(parts,
			part{"ppt/slides/slide" + n + ".xml", "slide.xml", s},
			part{"ppt/slides/_rels/slide" + n + ".xml.rels", "slide_rels.xml", s},
		)
	}

	for _, p := range parts {
		fw, err := zw.Create(p.path)
		if err != nil {
			return eris.Wrapf(err, "pptx: create %s", p.path)
		}
		if err := templates.ExecuteTemplate(fw, p.tmpl, p.data); err != nil {
			return eris.Wrapf(err, "pptx: render %s", p.path)
		}
	}
	return eris.Wrap(zw.Close(), "pptx: close package")
}
