package generator

import (
	"io"
	"math/rand/v2"
	"strings"
)

// URLGenerator writes URLs over a small set of domains, with many repeats.
type URLGenerator struct {
	DomainCount int
	rand        *rand.Rand
}

var domains = []string{
	"google.com",
	"facebook.com",
	"twitter.com",
	"github.com",
	"stackoverflow.com",
	"reddit.com",
	"youtube.com",
	"linkedin.com",
	"amazon.com",
	"wikipedia.org",
}

var paths = []string{"", "/home", "/about", "/contact", "/products", "/api/v1", "/api/v2", "/docs", "/blog", "/search", "/user/profile", "/settings", "/help"}

var params = []string{"", "?page=1", "?id=123", "?ref=homepage", "?utm_source=test", "?sort=desc"}

func (g *URLGenerator) Init(r *rand.Rand) {
	g.rand = r
}

func (g *URLGenerator) WriteLine(w io.Writer) error {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(pick(g.rand, domains, g.DomainCount))
	b.WriteString(pick(g.rand, paths, 0))
	b.WriteString(pick(g.rand, params, 0))
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

func (g *URLGenerator) Description() string {
	return "URLs for deduplication: https://domain.com/path?params"
}

func (g *URLGenerator) DefaultCount() int64 {
	return 5e4
}
