package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const catalogOrigin = "https://spb.cian.ru"

var (
	nonDigitsRe  = regexp.MustCompile(`[^\d]`)
	metroTimeRe  = regexp.MustCompile(`(\d+\s*мин)`)
	titleFloorRe = regexp.MustCompile(`(\d+/\d+)\s*эт`)
	titleAreaRe  = regexp.MustCompile(`(\d+[\.,]?\d*)\s*м`)
	pageDigitsRe = regexp.MustCompile(`^\d+$`)
)

// Stop words that indicate an anti-bot interstitial instead of an offer page.
var blockKeywords = []string{"vpn", "доступ ограничен", "captcha", "капча", "security check"}

// ExtractOfferURLs pulls offer links out of a catalog page. Several card
// selectors are tried because the catalog markup varies between rollouts.
func ExtractOfferURLs(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog html: %w", err)
	}

	cards := doc.Find(
		"article[data-name='CardComponent'], div[data-name='CardComponent'], " +
			"article[data-name='CardLayoutContainer'], div[data-name='CardLayoutContainer']",
	)
	if cards.Length() == 0 {
		cards = doc.Find("[data-testid^='card-item']")
	}
	if cards.Length() == 0 {
		cards = doc.Find("[data-testid='offer-card']")
	}

	seen := map[string]struct{}{}
	var urls []string
	cards.Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = catalogOrigin + href
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		urls = append(urls, href)
	})

	return urls, nil
}

// ParseOfferDetail turns a detail page into an Offer. It returns ErrArchived
// for delisted offers, a BotBlockError when the page is an anti-bot
// interstitial, and ErrPriceMissing when the price block never rendered.
func ParseOfferDetail(html, url string) (*Offer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse offer html: %w", err)
	}

	offer := newOffer(url)

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	lowerTitle := strings.ToLower(title)
	for _, kw := range blockKeywords {
		if strings.Contains(lowerTitle, kw) {
			return nil, &BotBlockError{Title: title}
		}
	}
	offer.Title = title

	addrLinks := doc.Find("div[data-name='AddressContainer'] a[data-name='AddressItem']")
	var addrParts []string
	addrLinks.Each(func(_ int, s *goquery.Selection) {
		addrParts = append(addrParts, strings.TrimSpace(s.Text()))
	})
	offer.Address = strings.Join(addrParts, ", ")

	metros := doc.Find("ul[data-name='UndergroundList'] li[data-name='UndergroundItem']")
	offer.MetroCount = metros.Length()
	if metros.Length() > 0 {
		if m := metroTimeRe.FindStringSubmatch(metros.First().Text()); m != nil {
			offer.MetroNearestTime = strings.Join(strings.Fields(m[1]), " ")
		}
	}

	priceText := doc.Find("div[data-testid='price-amount']").First().Text()
	if clean := nonDigitsRe.ReplaceAllString(priceText, ""); clean != "" {
		offer.PricePerMonth, _ = strconv.Atoi(clean)
	}

	if offer.PricePerMonth == 0 {
		lowerHTML := strings.ToLower(html)
		if strings.Contains(lowerHTML, "снято") || strings.Contains(lowerHTML, "архив") {
			return nil, ErrArchived
		}
		return nil, ErrPriceMissing
	}

	parseFacts(doc, offer)
	fillFloorAndArea(offer)

	doc.Find("div[data-name='FeaturesLayout'] div[data-name='FeaturesItem']").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			offer.Features = append(offer.Features, name)
		}
	})

	return offer, nil
}

// parseFacts collects key-value pairs from the three fact containers the
// detail page may use: the sidebar facts, the pinned factoids and the
// summary block.
func parseFacts(doc *goquery.Document, offer *Offer) {
	doc.Find("div[data-name='OfferFactsInSidebar'] div[data-name='OfferFactItem']").Each(func(_ int, s *goquery.Selection) {
		spans := s.Find("span")
		if spans.Length() >= 2 {
			// first span is the key, last one the value
			key := strings.TrimSpace(spans.First().Text())
			val := strings.TrimSpace(spans.Last().Text())
			if key != "" {
				offer.Facts[key] = val
			}
		}
	})

	doc.Find("div[data-name='ObjectFactoids'] div[data-name='ObjectFactoidsItem']").Each(func(_ int, s *goquery.Selection) {
		spans := s.Find("div[class*='text']").First().Find("span")
		if spans.Length() == 0 {
			spans = s.Find("span")
		}

		switch {
		case spans.Length() >= 2:
			key := strings.TrimSpace(spans.Eq(0).Text())
			val := strings.TrimSpace(spans.Eq(1).Text())
			if key != "" {
				offer.Facts[key] = val
			}
		case spans.Length() == 1:
			txt := strings.TrimSpace(spans.First().Text())
			if strings.Contains(txt, "м²") {
				offer.Facts["Общая площадь"] = txt
			}
			if strings.Contains(txt, "/") && strings.ContainsAny(txt, "0123456789") {
				offer.Facts["Этаж"] = txt
			}
		}
	})

	doc.Find("div[data-name='OfferSummaryInfoLayout'] div[data-name='OfferSummaryInfoItem']").Each(func(_ int, s *goquery.Selection) {
		children := s.Children()
		if children.Length() >= 2 {
			key := strings.TrimSpace(children.Eq(0).Text())
			val := strings.TrimSpace(children.Eq(1).Text())
			if key != "" {
				offer.Facts[key] = val
			}
		}
	})
}

func fillFloorAndArea(offer *Offer) {
	for key, val := range offer.Facts {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "этаж") && offer.Floor == "" {
			offer.Floor = val
		}
		if strings.Contains(lower, "площадь") && strings.Contains(lower, "общая") && offer.TotalArea == "" {
			offer.TotalArea = val
		}
	}

	// last resort: pull floor/area out of titles like "2-комн. кв., 55 м, 3/9 этаж"
	if offer.Floor == "" && offer.Title != "" {
		if m := titleFloorRe.FindStringSubmatch(offer.Title); m != nil {
			offer.Floor = m[1]
		}
	}
	if offer.TotalArea == "" && offer.Title != "" {
		if m := titleAreaRe.FindStringSubmatch(offer.Title); m != nil {
			offer.TotalArea = m[1]
		}
	}
}

// CurrentCatalogPage reads the active page number from the pagination block.
// The active page is rendered as a disabled button. Defaults to 1.
func CurrentCatalogPage(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	txt := strings.TrimSpace(doc.Find("nav[data-name='Pagination'] button[disabled] span").First().Text())
	if pageDigitsRe.MatchString(txt) {
		if n, err := strconv.Atoi(txt); err == nil {
			return n
		}
	}
	return 1
}

// BestJumpValue picks the pagination control to click when fast-forwarding:
// the target page when visible, otherwise the largest page number past the
// current one. The second return reports whether any numeric jump exists.
func BestJumpValue(html string, current, target int) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}

	best := -1
	found := false
	doc.Find("nav[data-name='Pagination'] span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		txt := strings.TrimSpace(s.Text())
		if !pageDigitsRe.MatchString(txt) {
			return true
		}
		val, err := strconv.Atoi(txt)
		if err != nil {
			return true
		}
		if val == target {
			best = val
			found = true
			return false
		}
		if val > current && val > best {
			best = val
			found = true
		}
		return true
	})

	return best, found
}
