package render

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/hazyhaar/adinject/inject"
	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/selector"
)

// Product card markup contract of the affiliate integration.
const (
	MarkerAffiliate     = "data-organic-affiliate-processed"
	attrProductGUID     = "data-organic-affiliate-product-guid"
	attrIntegrationOpts = "data-organic-affiliate-integration-options"
)

var productCards = selector.MustCompile(`div[data-organic-affiliate-integration="product-card"]`)

// AffiliateCards fills every product card container of an AMP document with
// an amp-iframe pointing at the affiliate domain. Containers already
// processed are left alone. It returns the number of cards filled.
func (e *Engine) AffiliateCards(doc *xhtml.Node, domain string) int {
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	if domain == "" || doc == nil {
		return 0
	}
	n := 0
	for _, card := range productCards.All(doc) {
		if inject.HasAttr(card, MarkerAffiliate) {
			continue
		}
		guid, _ := inject.Attr(card, attrProductGUID)
		opts, _ := inject.Attr(card, attrIntegrationOpts)

		nodes, err := e.amp(productCardHTML(productCardURL(domain, guid, opts)))
		if err != nil {
			e.logger.Warn("render: product card fragment", "guid", guid, "error", err)
			continue
		}
		if err := inject.Insert(card, nodes, placement.InsideStart); err != nil {
			e.logger.Warn("render: product card insert", "guid", guid, "error", err)
			continue
		}
		inject.SetAttr(card, MarkerAffiliate, "true")
		n++
	}
	return n
}

// productCardURL builds the card iframe URL. opts is the comma separated
// query string the integration stores on the container.
func productCardURL(domain, guid, opts string) string {
	u := domain + "/integrations/affiliate/product-card?guid=" + url.QueryEscape(guid)
	if opts != "" {
		u += "&" + strings.ReplaceAll(opts, ",", "&")
	}
	return u
}

func productCardHTML(src string) string {
	return fmt.Sprintf(`<amp-iframe height="540" layout="fixed-height" frameborder="0" `+
		`sandbox="allow-scripts allow-same-origin allow-popups allow-popups-to-escape-sandbox" src="%s">`+
		`<p placeholder="">Loading iframe content</p></amp-iframe>`, html.EscapeString(src))
}
