package reader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const containerPath = "META-INF/container.xml"

var ErrInvalidEpub = errors.New("invalid epub archive")

type container struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type packageDoc struct {
	Title    []string `xml:"metadata>title"`
	Manifest []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"manifest>item"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		Itemrefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type ncxDoc struct {
	Points []ncxPoint `xml:"navMap>navPoint"`
}

type ncxPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxPoint `xml:"navPoint"`
}

// TOCEntry is one table-of-contents item. Path is the archive path of the
// document it links to, without a fragment.
type TOCEntry struct {
	Title    string
	Path     string
	Children []TOCEntry
}

// Epub is an opened EPUB archive with its reading order resolved.
type Epub struct {
	Title string
	// Spine holds archive paths of the reading-order documents.
	Spine []string
	TOC   []TOCEntry

	zr *zip.ReadCloser
}

// OpenEpub reads the container, package document and table of contents of
// the EPUB at filePath. Close must be called when done.
func OpenEpub(filePath string) (*Epub, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	book := &Epub{zr: zr}
	if err := book.load(); err != nil {
		zr.Close()
		return nil, err
	}
	return book, nil
}

func (e *Epub) Close() error {
	return e.zr.Close()
}

func (e *Epub) load() error {
	var c container
	if err := e.decodeXML(containerPath, &c); err != nil {
		return err
	}
	opfPath := ""
	for _, rf := range c.Rootfiles {
		if rf.MediaType == "" || rf.MediaType == "application/oebps-package+xml" {
			opfPath = rf.FullPath
			break
		}
	}
	if opfPath == "" {
		return fmt.Errorf("%w: no package document", ErrInvalidEpub)
	}

	var pkg packageDoc
	if err := e.decodeXML(opfPath, &pkg); err != nil {
		return err
	}
	if len(pkg.Title) > 0 {
		e.Title = strings.TrimSpace(pkg.Title[0])
	}

	base := path.Dir(opfPath)
	hrefs := make(map[string]string, len(pkg.Manifest))
	navPath, ncxPath := "", ""
	for _, item := range pkg.Manifest {
		full := resolve(base, item.Href)
		hrefs[item.ID] = full
		if hasProperty(item.Properties, "nav") {
			navPath = full
		}
		if item.MediaType == "application/x-dtbncx+xml" && (ncxPath == "" || item.ID == pkg.Spine.Toc) {
			ncxPath = full
		}
	}
	for _, ref := range pkg.Spine.Itemrefs {
		if p, ok := hrefs[ref.IDRef]; ok {
			e.Spine = append(e.Spine, p)
		}
	}

	switch {
	case navPath != "":
		toc, err := e.readNav(navPath)
		if err != nil {
			return err
		}
		e.TOC = toc
	case ncxPath != "":
		var ncx ncxDoc
		if err := e.decodeXML(ncxPath, &ncx); err != nil {
			return err
		}
		e.TOC = convertNCX(path.Dir(ncxPath), ncx.Points)
	}
	return nil
}

// ChapterTitle looks up the title of the document at p in the table of
// contents, descending into nested entries.
func (e *Epub) ChapterTitle(p string) (string, bool) {
	return findTitle(e.TOC, p)
}

func findTitle(entries []TOCEntry, p string) (string, bool) {
	for _, entry := range entries {
		if entry.Path == p && entry.Title != "" {
			return entry.Title, true
		}
		if title, ok := findTitle(entry.Children, p); ok {
			return title, true
		}
	}
	return "", false
}

// ChapterBody returns the inner HTML of the document's <body>, or an empty
// string when the document has no body content.
func (e *Epub) ChapterBody(p string) (string, error) {
	data, err := e.readFile(p)
	if err != nil {
		return "", err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse chapter %s: %w", p, err)
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return "", nil
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("failed to render chapter %s: %w", p, err)
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

func (e *Epub) readNav(navPath string) ([]TOCEntry, error) {
	data, err := e.readFile(navPath)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse navigation document: %w", err)
	}

	var tocNav *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if tocNav != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav && attr(n, "epub:type") == "toc" {
			tocNav = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if tocNav == nil {
		tocNav = findElement(doc, atom.Nav)
	}
	if tocNav == nil {
		return nil, nil
	}
	list := findElement(tocNav, atom.Ol)
	if list == nil {
		return nil, nil
	}
	return navList(path.Dir(navPath), list), nil
}

func navList(base string, ol *html.Node) []TOCEntry {
	var entries []TOCEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var entry TOCEntry
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.A, atom.Span:
				entry.Title = strings.TrimSpace(textContent(c))
				if href := attr(c, "href"); href != "" {
					entry.Path = resolve(base, href)
				}
			case atom.Ol:
				entry.Children = navList(base, c)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func convertNCX(base string, points []ncxPoint) []TOCEntry {
	entries := make([]TOCEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, TOCEntry{
			Title:    strings.TrimSpace(p.Label),
			Path:     resolve(base, p.Content.Src),
			Children: convertNCX(base, p.Children),
		})
	}
	return entries
}

func (e *Epub) decodeXML(name string, v any) error {
	data, err := e.readFile(name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEpub, name, err)
	}
	return nil
}

func (e *Epub) readFile(name string) ([]byte, error) {
	for _, f := range e.zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: missing %s", ErrInvalidEpub, name)
}

// resolve turns an href relative to base into an archive path, dropping any
// fragment and percent-encoding.
func resolve(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if href == "" {
		return ""
	}
	return strings.TrimPrefix(path.Join(base, href), "./")
}

func hasProperty(props, want string) bool {
	for _, p := range strings.Fields(props) {
		if p == want {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if name == key || a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}
