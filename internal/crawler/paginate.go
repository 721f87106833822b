package crawler

import (
	"net/url"
	"strconv"
	"strings"
)

// PageStrategy builds page URLs for one catalog's page-numbering convention
type PageStrategy struct {
	Host  string
	Param string
	// Auto sources are paginated without opting in through their config
	Auto bool
}

// PageURL returns the URL of page n. Page 1 is the base URL as is.
func (p PageStrategy) PageURL(base string, n int) string {
	if n <= 1 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(p.Param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// Paginators maps catalog hosts to their page-numbering strategy
type Paginators struct {
	strategies []PageStrategy
	fallback   PageStrategy
}

// DefaultPaginators returns the registry of known catalogs
func DefaultPaginators() *Paginators {
	p := &Paginators{fallback: PageStrategy{Param: "p"}}
	p.Register(PageStrategy{Host: "tokmanni.fi", Param: "p", Auto: true})
	p.Register(PageStrategy{Host: "prisma.fi", Param: "page"})
	return p
}

// Register adds or replaces the strategy for a host
func (p *Paginators) Register(s PageStrategy) {
	s.Host = strings.ToLower(s.Host)
	for i, existing := range p.strategies {
		if existing.Host == s.Host {
			p.strategies[i] = s
			return
		}
	}
	p.strategies = append(p.strategies, s)
}

// For returns the strategy for src and whether src is fetched page by page
func (p *Paginators) For(src SourceConfig) (PageStrategy, bool) {
	strategy := p.fallback
	if s, ok := p.lookup(src.URL); ok {
		strategy = s
	}
	return strategy, strategy.Auto || src.Paginate
}

func (p *Paginators) lookup(rawURL string) (PageStrategy, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PageStrategy{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range p.strategies {
		if host == s.Host || strings.HasSuffix(host, "."+s.Host) {
			return s, true
		}
	}
	return PageStrategy{}, false
}
