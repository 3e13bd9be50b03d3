package provider

import "strings"

// aggregatorDomains lists known aggregator and review sites that pollute
// lead-oriented results. Every upstream query excludes all of them.
var aggregatorDomains = []string{
	"justdial.com", "sulekha.com", "indiamart.com", "yellowpages.in", "yelp.com",
	"tripadvisor.in", "zomato.com", "magicbricks.com", "99acres.com", "housing.com",
	"makemytrip.com", "goibibo.com", "trivago.in", "booking.com", "airbnb.com", "hotels.com",
	"trustpilot.com", "glassdoor.com", "g2.com", "clutch.co", "upcity.com", "designrush.com",
	"comparisun.com", "bestfirms.com", "businesslist.io", "goodfirms.co", "capterra.in",
	"topdevelopers.co", "serchen.com", "reddit.com",
}

// excludeTerm filters listicle-style pages ("Top 10 ..." etc.).
const excludeTerm = `"Top"`

// exclusionClause is built once; the augmentation must be deterministic and
// identical for every query.
var exclusionClause = buildExclusionClause()

func buildExclusionClause() string {
	var b strings.Builder
	for _, domain := range aggregatorDomains {
		b.WriteString(" -site:")
		b.WriteString(domain)
	}
	b.WriteString(" -")
	b.WriteString(excludeTerm)
	return b.String()
}

// BuildQuery augments a raw query with the fixed site-exclusion clause.
// The transform is a pure function of the input string.
func BuildQuery(query string) string {
	return query + exclusionClause
}
