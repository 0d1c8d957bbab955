package epub

import (
	"archive/zip"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/bindstack/bindstack/internal/binder"
)

// fakeImages serves canned assets and records failures by URL.
type fakeImages struct {
	failing map[string]bool
	fetched []string
}

func (f *fakeImages) FetchImage(_ context.Context, url string) (binder.ImageAsset, bool) {
	f.fetched = append(f.fetched, url)
	if f.failing[url] {
		return binder.ImageAsset{}, false
	}
	return binder.ImageAsset{Data: []byte("imagebytes"), MediaType: "image/jpeg", Ext: ".jpg"}, true
}

func contentSelection(t *testing.T, innerHTML string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><div class="post">` + innerHTML + `</div></body></html>`))
	require.NoError(t, err)
	sel := doc.Find("div.post")
	require.Equal(t, 1, sel.Length())
	return sel
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	files := make(map[string]string, len(r.File))
	for _, zf := range r.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[zf.Name] = string(data)
	}
	return files
}

// TestAssembleEmbedsImages covers the partial-failure case: one of three
// images fails to fetch, so the chapter holds exactly two embedded images and
// zero broken references.
func TestAssembleEmbedsImages(t *testing.T) {
	t.Parallel()

	images := &fakeImages{failing: map[string]bool{"https://cdn.example/b.png": true}}
	content := contentSelection(t, `
		<p>intro</p>
		<img src="https://cdn.example/a.png" alt="first"/>
		<img src="https://cdn.example/b.png" alt="broken"/>
		<img src="https://cdn.example/c.png"/>
	`)

	builder := NewBuilder(nil)
	path, count, err := builder.Assemble(context.Background(), images, Document{
		Publication: "testpub",
		Slug:        "a-post",
		Title:       "A Post",
		Author:      "Ada",
		Date:        "2024-01-02",
	}, content, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, "a-post.epub", filepath.Base(path))

	files := readZip(t, path)
	require.Equal(t, "application/epub+zip", files["mimetype"])
	require.Contains(t, files, "OEBPS/images/img_001.jpg")
	require.Contains(t, files, "OEBPS/images/img_002.jpg")

	chapter := files["OEBPS/content.xhtml"]
	require.Equal(t, 2, strings.Count(chapter, "<img"))
	require.Contains(t, chapter, `src="images/img_001.jpg"`)
	require.Contains(t, chapter, `alt="first"`)
	require.NotContains(t, chapter, "cdn.example")

	opf := files["OEBPS/content.opf"]
	require.Contains(t, opf, "substack-testpub-a-post")
	require.Contains(t, opf, `href="images/img_002.jpg"`)
}

// TestAssembleDropsTrackingPixels removes 1x1 images without attempting a
// fetch.
func TestAssembleDropsTrackingPixels(t *testing.T) {
	t.Parallel()

	images := &fakeImages{}
	content := contentSelection(t, `
		<img src="https://cdn.example/pixel.gif" width="1" height="1"/>
		<img src="https://cdn.example/real.png" width="600" height="400"/>
	`)

	builder := NewBuilder(nil)
	path, count, err := builder.Assemble(context.Background(), images, Document{
		Publication: "testpub", Slug: "p", Title: "Pixels",
	}, content, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, []string{"https://cdn.example/real.png"}, images.fetched)

	chapter := readZip(t, path)["OEBPS/content.xhtml"]
	require.Equal(t, 1, strings.Count(chapter, "<img"))
}

// TestAssembleHeader renders title, optional subtitle, date, and separator
// before the content.
func TestAssembleHeader(t *testing.T) {
	t.Parallel()

	content := contentSelection(t, `<p>body text</p>`)
	builder := NewBuilder(nil)
	path, count, err := builder.Assemble(context.Background(), &fakeImages{}, Document{
		Publication: "testpub",
		Slug:        "s",
		Title:       "Title & More",
		Author:      "Ada",
		Date:        "2024-05-06",
		Subtitle:    "A subtitle",
	}, content, t.TempDir())
	require.NoError(t, err)
	require.Zero(t, count)

	chapter := readZip(t, path)["OEBPS/content.xhtml"]
	require.Contains(t, chapter, "<h1>Title &amp; More</h1>")
	require.Contains(t, chapter, `<p class="subtitle">A subtitle</p>`)
	require.Contains(t, chapter, `<p class="date">2024-05-06</p>`)
	require.Contains(t, chapter, "<hr/>")
	require.Contains(t, chapter, "body text")
}

// TestAssembleWriteFailure surfaces an error when the output directory does
// not exist.
func TestAssembleWriteFailure(t *testing.T) {
	t.Parallel()

	content := contentSelection(t, `<p>x</p>`)
	builder := NewBuilder(nil)
	_, _, err := builder.Assemble(context.Background(), &fakeImages{}, Document{
		Publication: "testpub", Slug: "s", Title: "T",
	}, content, filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
}
