package crawler

import (
	"net/url"
	"sort"
	"strings"

	"github.com/alvmarrod/marker-scout/internal/config"
	"github.com/alvmarrod/marker-scout/internal/driver"
)

// Keywords checked against same-site links by FilterLinks
var filterKeywords = []string{"download", "upload", "media"}

// givingKeyword pairs a keyword with its rank; order matters, the first
// match wins
type givingKeyword struct {
	keyword string
	rank    int
}

var givingKeywords = []givingKeyword{
	{"mogiv", 3},
	{"giving", 2},
	{"give", 2},
	{"donate", 2},
	{"tithe", 2},
	{"pay", 1},
}

// RankedLink is a link with its exploration priority
type RankedLink struct {
	driver.Link
	Rank int
}

// ExtractDomain extracts the lower-cased hostname from a URL string
func ExtractDomain(urlStr string) (string, error) {
	// Handle protocol-relative URLs
	if strings.HasPrefix(urlStr, "//") {
		urlStr = "https:" + urlStr
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	return strings.ToLower(parsed.Hostname()), nil
}

// NormalizeDomain collapses a hostname for same-site comparison.
// Hosts with more than one period lose their first label:
// www.example.com -> example.com, example.com stays as is.
func NormalizeDomain(hostname string) string {
	hostname = strings.ToLower(hostname)
	if strings.Count(hostname, ".") > 1 {
		return hostname[strings.Index(hostname, ".")+1:]
	}
	return hostname
}

// FilterLinks drops same-site links failing the keyword test and returns
// what was kept and what was skipped.
//
// With config.FilterKeepOnMatch a same-site link is kept when its path,
// query or text contains a filter keyword. This is the recorded behavior
// even though the keywords read like an exclusion list;
// config.FilterSkipOnMatch is the exclusion reading.
func FilterLinks(links []driver.Link, landingPage string, mode string) (kept, skipped []driver.Link) {
	landingHost, err := ExtractDomain(landingPage)
	if err != nil {
		landingHost = ""
	}
	landingDomain := NormalizeDomain(landingHost)

	for _, link := range links {
		linkHost, err := ExtractDomain(link.Href)
		if err != nil {
			skipped = append(skipped, link)
			continue
		}

		// Cross-site links stay as candidates
		if NormalizeDomain(linkHost) != landingDomain {
			kept = append(kept, link)
			continue
		}

		// Bare landing URL
		if link.Pathname == "" && link.Search == "" && link.Text == "" {
			kept = append(kept, link)
			continue
		}

		matched := containsAny(link.Pathname+link.Search, filterKeywords) || containsAny(link.Text, filterKeywords)
		if matched == (mode != config.FilterSkipOnMatch) {
			kept = append(kept, link)
		} else {
			skipped = append(skipped, link)
		}
	}

	return kept, skipped
}

// FastRankLink returns the rank of the first giving keyword found in the
// link's path, text or query, or 0
func FastRankLink(link driver.Link) int {
	for _, gk := range givingKeywords {
		if strings.Contains(link.Pathname, gk.keyword) ||
			strings.Contains(link.Text, gk.keyword) ||
			strings.Contains(link.Search, gk.keyword) {
			return gk.rank
		}
	}
	return 0
}

// RankLinks ranks every link and orders them by descending rank
func RankLinks(links []driver.Link) []RankedLink {
	ranked := make([]RankedLink, 0, len(links))
	for _, link := range links {
		ranked = append(ranked, RankedLink{Link: link, Rank: FastRankLink(link)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank > ranked[j].Rank
	})

	return ranked
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
