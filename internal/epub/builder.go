// Package epub assembles single-chapter EPUB documents from sanitized
// article content, embedding images as internal assets.
package epub

import (
	"archive/zip"
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
)

// Document carries the metadata for one assembled chapter.
type Document struct {
	Publication string
	Slug        string
	Title       string
	Author      string
	Date        string
	Subtitle    string
}

// Builder packages sanitized content into EPUB files.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger}
}

type imageItem struct {
	name      string
	mediaType string
	data      []byte
}

// Assemble embeds images into content, packages the EPUB into outputDir, and
// returns the written path plus the embedded image count. Write failures are
// fatal to the caller's job.
func (b *Builder) Assemble(
	ctx context.Context,
	images binder.ImageFetcher,
	doc Document,
	content *goquery.Selection,
	outputDir string,
) (string, int, error) {
	assets := b.embedImages(ctx, images, content)

	contentHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return "", 0, fmt.Errorf("render content: %w", err)
	}

	path := filepath.Join(outputDir, FilenameFromTitle(doc.Title)+".epub")
	if err := writeContainer(path, doc, contentHTML, assets); err != nil {
		return "", 0, err
	}
	b.logger.Debug("assembled document",
		zap.String("path", path),
		zap.Int("images", len(assets)),
	)
	return path, len(assets), nil
}

// embedImages filters, fetches, and rewrites image references in place.
// Tracking pixels are dropped without a fetch; failed fetches remove the
// element so no broken references survive.
func (b *Builder) embedImages(
	ctx context.Context,
	images binder.ImageFetcher,
	content *goquery.Selection,
) []imageItem {
	var assets []imageItem
	content.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		if isTrackingPixel(img) {
			img.Remove()
			return
		}
		asset, ok := images.FetchImage(ctx, src)
		if !ok {
			img.Remove()
			return
		}
		name := fmt.Sprintf("images/img_%03d%s", len(assets)+1, asset.Ext)
		assets = append(assets, imageItem{name: name, mediaType: asset.MediaType, data: asset.Data})

		alt := img.AttrOr("alt", "")
		for _, node := range img.Nodes {
			node.Attr = node.Attr[:0]
		}
		img.SetAttr("src", name)
		if alt != "" {
			img.SetAttr("alt", alt)
		}
	})
	return assets
}

// isTrackingPixel reports whether both declared dimensions are present and
// at most one pixel.
func isTrackingPixel(img *goquery.Selection) bool {
	width, okW := img.Attr("width")
	height, okH := img.Attr("height")
	if !okW || !okH || width == "" || height == "" {
		return false
	}
	w, errW := strconv.ParseFloat(strings.TrimSpace(width), 64)
	h, errH := strconv.ParseFloat(strings.TrimSpace(height), 64)
	if errW != nil || errH != nil {
		return false
	}
	return w <= 1 && h <= 1
}

// writeContainer writes the fixed EPUB zip layout: the stored mimetype entry
// first, then container.xml, package document, nav, stylesheet, images, and
// the chapter itself.
func writeContainer(path string, doc Document, contentHTML string, assets []imageItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	zw := zip.NewWriter(f)

	write := func(name string, data []byte, compress bool) error {
		method := zip.Deflate
		if !compress {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		return nil
	}

	// The mimetype entry must be first and uncompressed.
	entries := []struct {
		name     string
		data     []byte
		compress bool
	}{
		{"mimetype", []byte("application/epub+zip"), false},
		{"META-INF/container.xml", []byte(containerXML), true},
		{"OEBPS/content.opf", []byte(packageDocument(doc, assets)), true},
		{"OEBPS/nav.xhtml", []byte(navDocument(doc)), true},
		{"OEBPS/style/default.css", []byte(defaultStylesheet), true},
		{"OEBPS/content.xhtml", []byte(chapterDocument(doc, contentHTML)), true},
	}
	for _, e := range entries {
		if err := write(e.name, e.data, e.compress); err != nil {
			_ = zw.Close()
			_ = f.Close()
			return err
		}
	}
	for _, asset := range assets {
		if err := write("OEBPS/"+asset.name, asset.data, true); err != nil {
			_ = zw.Close()
			_ = f.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize epub: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close epub: %w", err)
	}
	return nil
}

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

// packageDocument renders the OPF package with metadata, manifest, and spine.
func packageDocument(doc Document, assets []imageItem) string {
	var sb strings.Builder
	identifier := fmt.Sprintf("substack-%s-%s", doc.Publication, doc.Slug)

	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString(`<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">` + "\n")
	sb.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", html.EscapeString(identifier))
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", html.EscapeString(doc.Title))
	fmt.Fprintf(&sb, "    <dc:creator>%s</dc:creator>\n", html.EscapeString(doc.Author))
	sb.WriteString("    <dc:language>en</dc:language>\n")
	if doc.Date != "" {
		fmt.Fprintf(&sb, "    <dc:date>%s</dc:date>\n", html.EscapeString(doc.Date))
	}
	fmt.Fprintf(&sb, "    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	sb.WriteString("  </metadata>\n")

	sb.WriteString("  <manifest>\n")
	sb.WriteString(`    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n")
	sb.WriteString(`    <item id="style" href="style/default.css" media-type="text/css"/>` + "\n")
	sb.WriteString(`    <item id="content" href="content.xhtml" media-type="application/xhtml+xml"/>` + "\n")
	for i, asset := range assets {
		fmt.Fprintf(&sb, "    <item id=\"img_%d\" href=\"%s\" media-type=\"%s\"/>\n",
			i+1, asset.name, html.EscapeString(asset.mediaType))
	}
	sb.WriteString("  </manifest>\n")
	sb.WriteString("  <spine>\n    <itemref idref=\"content\"/>\n  </spine>\n")
	sb.WriteString("</package>\n")
	return sb.String()
}

func navDocument(doc Document) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>
  <nav epub:type="toc">
    <ol><li><a href="content.xhtml">%s</a></li></ol>
  </nav>
</body>
</html>
`, html.EscapeString(doc.Title), html.EscapeString(doc.Title))
}

// chapterDocument renders the single chapter: generated header followed by
// the sanitized content.
func chapterDocument(doc Document, contentHTML string) string {
	var header strings.Builder
	fmt.Fprintf(&header, "<h1>%s</h1>\n", html.EscapeString(doc.Title))
	if doc.Subtitle != "" {
		fmt.Fprintf(&header, "<p class=\"subtitle\">%s</p>\n", html.EscapeString(doc.Subtitle))
	}
	fmt.Fprintf(&header, "<p class=\"date\">%s</p>\n<hr/>\n", html.EscapeString(doc.Date))

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>%s</title>
  <link rel="stylesheet" type="text/css" href="style/default.css"/>
</head>
<body>
%s%s
</body>
</html>
`, html.EscapeString(doc.Title), header.String(), contentHTML)
}
