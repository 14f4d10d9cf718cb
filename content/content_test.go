package content

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExcerpt_LongContent verifies long text is cut to 151 characters
func TestExcerpt_LongContent(t *testing.T) {
	text := strings.Repeat("é", 400)

	got := Excerpt(text)

	assert.Equal(t, 151, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

// TestExcerpt_ShortContent verifies text at or under the limit is unchanged
func TestExcerpt_ShortContent(t *testing.T) {
	for _, n := range []int{0, 1, 149, 150} {
		text := strings.Repeat("a", n)
		assert.Equal(t, text, Excerpt(text), "length %d", n)
	}
}

func TestExcerpt_DropsURLLines(t *testing.T) {
	text := "https://example.tn/a\nAppel à projets"
	assert.Equal(t, "Appel à projets", Excerpt(text))
}

// TestSlug_UniqueForSameTitle verifies two identical titles get different slugs
func TestSlug_UniqueForSameTitle(t *testing.T) {
	a := Slug("Appel à candidatures 2022")
	b := Slug("Appel à candidatures 2022")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "appel-a-candidatures-2022-"))
	assert.Len(t, a, len("appel-a-candidatures-2022-")+6)
}

func TestSlug_Transliterates(t *testing.T) {
	s := Slug("إعلان عن مناظرة")

	assert.Regexp(t, `^[a-z0-9-]+$`, s)
}

func TestSlug_EmptyTitle(t *testing.T) {
	assert.Len(t, Slug(""), 6)
}

func TestPlainText_RemovesBoilerplate(t *testing.T) {
	html := `<div>
		<ul class="breadcrumb"><li>Accueil</li></ul>
		<script>var x = 1;</script>
		<p>  Premier paragraphe  </p>
		<div class="shareBar">Partager</div>
		<p>Second</p>
		<p>Facebook Twitter LinkedIn Whatsapp Share via Email Print</p>
	</div>`

	text, err := PlainText(html)

	require.NoError(t, err)
	assert.Equal(t, "Premier paragraphe\nSecond", text)
}

func TestMinify_KeepsStructure(t *testing.T) {
	out, err := Minify("<div>\n  <!-- note -->\n  <p>Bonjour</p>\n</div>")

	require.NoError(t, err)
	assert.NotContains(t, out, "note")
	assert.Contains(t, out, "<p>Bonjour</p>")
}

func TestPrepare(t *testing.T) {
	assert.Equal(t, "a b c", Prepare("a\u00a0b  c"))
}

// TestGuessApplyURL verifies the last non-share link is picked
func TestGuessApplyURL(t *testing.T) {
	html := `<p><a href="https://apply.example.tn/form">Postuler</a>
		<a href="#">top</a>
		<a href="https://www.addtoany.com/share">Share</a></p>`

	assert.Equal(t, "https://apply.example.tn/form", GuessApplyURL(html))
	assert.Empty(t, GuessApplyURL("<p>none</p>"))
}

func TestEncodeIdentity(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://example.tn/a/b.html", "https://example.tn/a/b.html"},
		{"https://example.tn/news?id=5&l=fr", "https://example.tn/news%3Fid%3D5%26l%3Dfr"},
		{"http://example.tn/مقال", "http://example.tn/%D9%85%D9%82%D8%A7%D9%84"},
		{"https://example.tn/a b", "https://example.tn/a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := EncodeIdentity(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, DecodeIdentity(got))
		})
	}
}

func TestDecodeIdentity_Malformed(t *testing.T) {
	assert.Equal(t, "https://example.tn/100%", DecodeIdentity("https://example.tn/100%"))
}

func TestMarkdown(t *testing.T) {
	out, err := Markdown(`<h2>Appel</h2><p>Voir <a href="https://example.tn/a">le lien</a></p>`)

	require.NoError(t, err)
	assert.Contains(t, out, "## Appel")
	assert.Contains(t, out, "[le lien](https://example.tn/a)")
}

func TestText(t *testing.T) {
	assert.Equal(t, "Appel & offre", Text("<h1>Appel &amp; <b>offre</b></h1>"))
	assert.Equal(t, "R&D", Text("R&amp;D"))
}
