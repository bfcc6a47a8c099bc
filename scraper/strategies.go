package scraper

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"apt_scrooper/config"
	"apt_scrooper/extract"
	"apt_scrooper/models"
)

// Document is a parsed page plus the URL it was served from.
type Document struct {
	URL string
	Doc *goquery.Document
}

func ParseDocument(page *Page) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, err
	}
	return &Document{URL: page.URL, Doc: doc}, nil
}

// IdentityExtractor fills the building identity fields it can find.
type IdentityExtractor interface {
	Name() string
	ExtractIdentity(doc *Document) models.ScrapedBuilding
}

// FloorPlanExtractor returns every floor plan card it recognizes.
type FloorPlanExtractor interface {
	Name() string
	ExtractFloorPlans(doc *Document) []models.ScrapedFloorPlan
}

// SpecialsExtractor returns promo blocks found on a page.
type SpecialsExtractor interface {
	Name() string
	ExtractSpecials(doc *Document, now time.Time) []models.ScrapedSpecial
}

// BedroomFallback infers a bedroom count when card text states none.
type BedroomFallback func(planName string) (int, bool)

// Strategies is a provider's ordered extractor list. For floor plans and
// specials the first extractor with a non-empty result wins. Identity fields
// are taken from the first extractor that has them.
type Strategies struct {
	Identity   []IdentityExtractor
	FloorPlans []FloorPlanExtractor
	Specials   []SpecialsExtractor
}

func DefaultStrategies(sel config.SelectorConfig, fallback BedroomFallback) Strategies {
	return Strategies{
		Identity: []IdentityExtractor{
			jsonLDIdentity{},
			selectorIdentity{sel: sel},
		},
		FloorPlans: []FloorPlanExtractor{
			selectorCards{sel: sel, fallback: fallback},
			genericCards{fallback: fallback},
		},
		Specials: []SpecialsExtractor{
			selectorSpecials{sel: sel},
			genericSpecials{},
		},
	}
}

func (s Strategies) identity(doc *Document) models.ScrapedBuilding {
	var b models.ScrapedBuilding
	for _, ex := range s.Identity {
		mergeIdentity(&b, ex.ExtractIdentity(doc))
	}
	return b
}

func (s Strategies) floorPlans(doc *Document) ([]models.ScrapedFloorPlan, string) {
	for _, ex := range s.FloorPlans {
		if plans := ex.ExtractFloorPlans(doc); len(plans) > 0 {
			return plans, ex.Name()
		}
	}
	return nil, ""
}

func (s Strategies) specials(doc *Document, now time.Time) []models.ScrapedSpecial {
	for _, ex := range s.Specials {
		if found := ex.ExtractSpecials(doc, now); len(found) > 0 {
			return found
		}
	}
	return nil
}

func mergeIdentity(dst *models.ScrapedBuilding, src models.ScrapedBuilding) {
	fill := func(d *string, s string) {
		if *d == "" {
			*d = s
		}
	}
	fill(&dst.Name, src.Name)
	fill(&dst.Address, src.Address)
	fill(&dst.City, src.City)
	fill(&dst.State, src.State)
	fill(&dst.Zip, src.Zip)
	fill(&dst.Phone, src.Phone)
	if dst.Lat == nil && dst.Lng == nil {
		dst.Lat, dst.Lng = src.Lat, src.Lng
	}
	if len(dst.PhotoURLs) == 0 {
		dst.PhotoURLs = src.PhotoURLs
	}
	if len(dst.Amenities) == 0 {
		dst.Amenities = src.Amenities
	}
	dst.PetFriendly = dst.PetFriendly || src.PetFriendly
	dst.ParkingAvailable = dst.ParkingAvailable || src.ParkingAvailable
}

// ============================================================================
// Identity
// ============================================================================

var placeTypes = map[string]bool{
	"apartmentcomplex": true, "apartment": true, "residence": true, "place": true,
	"localbusiness": true, "realestateagent": true, "lodgingbusiness": true,
}

type jsonLDIdentity struct{}

func (jsonLDIdentity) Name() string { return "json-ld" }

func (jsonLDIdentity) ExtractIdentity(doc *Document) models.ScrapedBuilding {
	var b models.ScrapedBuilding
	doc.Doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &raw); err != nil {
			return true
		}
		for _, node := range flattenLD(raw) {
			if !isPlace(node) {
				continue
			}
			b = placeToBuilding(node, doc.URL)
			if b.Name != "" || b.Address != "" {
				return false
			}
		}
		return true
	})
	return b
}

func flattenLD(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			out = append(out, flattenLD(item)...)
		}
	case map[string]any:
		out = append(out, t)
		if graph, ok := t["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
	}
	return out
}

func isPlace(node map[string]any) bool {
	for _, typ := range stringList(node["@type"]) {
		if placeTypes[strings.ToLower(typ)] {
			return true
		}
	}
	return false
}

func placeToBuilding(node map[string]any, base string) models.ScrapedBuilding {
	b := models.ScrapedBuilding{
		Name:  cleanText(str(node["name"])),
		Phone: cleanText(str(node["telephone"])),
	}

	switch addr := node["address"].(type) {
	case map[string]any:
		b.Address = cleanText(str(addr["streetAddress"]))
		b.City = cleanText(str(addr["addressLocality"]))
		b.State = cleanText(str(addr["addressRegion"]))
		b.Zip = cleanText(str(addr["postalCode"]))
	case string:
		b.Address, b.City, b.State, b.Zip = splitAddress(addr)
	}

	if geo, ok := node["geo"].(map[string]any); ok {
		b.Lat, b.Lng = number(geo["latitude"]), number(geo["longitude"])
	}

	for _, img := range stringList(node["image"]) {
		b.PhotoURLs = append(b.PhotoURLs, absURL(base, img))
	}

	if features, ok := node["amenityFeature"].([]any); ok {
		for _, f := range features {
			if m, ok := f.(map[string]any); ok {
				if name := cleanText(str(m["name"])); name != "" {
					b.Amenities = append(b.Amenities, name)
				}
			}
		}
	}
	b.PetFriendly = truthy(node["petsAllowed"]) || mentionsPets(b.Amenities)
	b.ParkingAvailable = mentionsParking(b.Amenities)
	return b
}

type selectorIdentity struct {
	sel config.SelectorConfig
}

func (selectorIdentity) Name() string { return "selectors" }

func (e selectorIdentity) ExtractIdentity(doc *Document) models.ScrapedBuilding {
	root := doc.Doc.Selection
	b := models.ScrapedBuilding{
		Name:  firstText(root, e.sel.Name),
		Phone: firstText(root, e.sel.Phone),
	}
	if b.Name == "" {
		b.Name = metaName(doc.Doc)
	}
	if addr := firstText(root, e.sel.Address); addr != "" {
		b.Address, b.City, b.State, b.Zip = splitAddress(addr)
	}

	seen := map[string]bool{}
	for _, sel := range e.sel.Amenity {
		root.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := cleanText(s.Text()); t != "" && !seen[t] {
				seen[t] = true
				b.Amenities = append(b.Amenities, t)
			}
		})
	}
	for _, sel := range e.sel.Gallery {
		root.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if src := imageSource(s); src != "" {
				b.PhotoURLs = append(b.PhotoURLs, absURL(doc.URL, src))
			}
		})
	}
	b.PetFriendly = mentionsPets(b.Amenities)
	b.ParkingAvailable = mentionsParking(b.Amenities)
	return b
}

// metaName reads og:site_name, then the title up to its first separator.
func metaName(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && strings.TrimSpace(v) != "" {
		return cleanText(v)
	}
	title := cleanText(doc.Find("title").First().Text())
	for _, sep := range []string{" | ", " - ", " – "} {
		if i := strings.Index(title, sep); i > 0 {
			title = title[:i]
		}
	}
	return strings.TrimSpace(title)
}

var addressTail = regexp.MustCompile(`^(.*?),\s*([^,]+?),\s*([A-Za-z]{2})\.?\s+(\d{5})(?:-\d{4})?\s*$`)

// splitAddress breaks "100 Main St, Atlanta, GA 30308" into its parts.
// Anything else is returned whole as the street line.
func splitAddress(s string) (street, city, state, zip string) {
	s = cleanText(s)
	if m := addressTail.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.ToUpper(m[3]), m[4]
	}
	return s, "", "", ""
}

var (
	petPattern     = regexp.MustCompile(`(?i)\bpets?\b|\bdog\s+park\b|\bpet[-\s]friendly\b|\bbark\s+park\b`)
	parkingPattern = regexp.MustCompile(`(?i)\bparking\b|\bgarage\b|\bcarport\b`)
)

func mentionsPets(amenities []string) bool {
	return anyMatch(petPattern, amenities)
}

func mentionsParking(amenities []string) bool {
	return anyMatch(parkingPattern, amenities)
}

func anyMatch(re *regexp.Regexp, items []string) bool {
	for _, it := range items {
		if re.MatchString(it) {
			return true
		}
	}
	return false
}

// ============================================================================
// Floor plans
// ============================================================================

type cardFields struct {
	name      string
	all       string
	beds      string
	baths     string
	sqft      string
	rent      string
	available string
	photo     string
}

var (
	availableCount = regexp.MustCompile(`(?i)(\d+)\s+(?:units?\s+|homes?\s+|apartments?\s+)?available`)
	availableNow   = regexp.MustCompile(`(?i)\bavailable\s+(?:now|today)\b`)
	noAvailability = regexp.MustCompile(`(?i)\bno\s+(?:units?\s+)?availab|\bunavailable\b|\bwait\s*list\b`)
)

func buildFloorPlan(f cardFields, fallback BedroomFallback) models.ScrapedFloorPlan {
	fp := models.ScrapedFloorPlan{Name: f.name, PhotoURL: f.photo}

	bedText := orElse(f.beds, f.all)
	if n, ok := extract.ParseBedrooms(bedText); ok {
		fp.Bedrooms = n
	} else if n, ok := fallbackBedrooms(fallback, f.name); ok {
		fp.Bedrooms = n
	} else {
		fp.Bedrooms = extract.Bedrooms(bedText)
	}

	fp.Bathrooms = extract.Bathrooms(orElse(f.baths, f.all))
	fp.SqFtMin, fp.SqFtMax = extract.SquareFeet(orElse(f.sqft, f.all))

	rent := extract.Rent(orElse(f.rent, f.all))
	fp.RentMin, fp.RentMax = rent.Min, rent.Max

	fp.AvailableCount = parseAvailable(orElse(f.available, f.all))
	return fp
}

func fallbackBedrooms(fallback BedroomFallback, name string) (int, bool) {
	if fallback == nil || name == "" {
		return 0, false
	}
	return fallback(name)
}

func parseAvailable(text string) int {
	if m := availableCount.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if noAvailability.MatchString(text) {
		return 0
	}
	if availableNow.MatchString(text) {
		return 1
	}
	return 0
}

// selectorCards reads cards matched by the provider's floor plan selectors.
// The first card selector with any match is used.
type selectorCards struct {
	sel      config.SelectorConfig
	fallback BedroomFallback
}

func (selectorCards) Name() string { return "selector-cards" }

func (e selectorCards) ExtractFloorPlans(doc *Document) []models.ScrapedFloorPlan {
	for _, cardSel := range e.sel.FloorPlanCard {
		cards := doc.Doc.Find(cardSel)
		if cards.Length() == 0 {
			continue
		}
		var plans []models.ScrapedFloorPlan
		cards.Each(func(_ int, card *goquery.Selection) {
			f := cardFields{
				name:      firstText(card, e.sel.PlanName),
				all:       cleanText(card.Text()),
				beds:      firstText(card, e.sel.PlanBeds),
				baths:     firstText(card, e.sel.PlanBaths),
				sqft:      firstText(card, e.sel.PlanSqFt),
				rent:      firstText(card, e.sel.PlanRent),
				available: firstText(card, e.sel.PlanAvailable),
				photo:     firstImage(card, e.sel.PlanImage, doc.URL),
			}
			if f.all == "" {
				return
			}
			plans = append(plans, buildFloorPlan(f, e.fallback))
		})
		if len(plans) > 0 {
			return plans
		}
	}
	return nil
}

var (
	bedSniff   = regexp.MustCompile(`(?i)\bstudio\b|\d+\s*-?\s*(?:bedrooms?|beds?|bd|br)\b`)
	priceSniff = regexp.MustCompile(`\$\s*\d`)
)

const maxCardText = 600

// genericCards finds the innermost elements whose text carries both a
// bedroom token and a price, for sites without usable class names.
type genericCards struct {
	fallback BedroomFallback
}

func (genericCards) Name() string { return "generic-cards" }

func (e genericCards) ExtractFloorPlans(doc *Document) []models.ScrapedFloorPlan {
	looksLikeCard := func(s *goquery.Selection) bool {
		t := s.Text()
		return len(t) <= maxCardText*4 && bedSniff.MatchString(t) && priceSniff.MatchString(t)
	}

	var plans []models.ScrapedFloorPlan
	seen := map[string]bool{}
	doc.Doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "script", "style", "noscript":
			return
		}
		if !looksLikeCard(s) {
			return
		}
		innermost := true
		s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if looksLikeCard(c) {
				innermost = false
			}
			return innermost
		})
		if !innermost {
			return
		}
		text := cleanText(s.Text())
		if len(text) > maxCardText || seen[text] {
			return
		}
		seen[text] = true

		f := cardFields{
			name:  cleanText(s.Find("h1, h2, h3, h4, h5, strong").First().Text()),
			all:   text,
			photo: firstImage(s, []string{"img"}, doc.URL),
		}
		plans = append(plans, buildFloorPlan(f, e.fallback))
	})
	return plans
}

// ============================================================================
// Specials
// ============================================================================

const maxTitleLen = 80

// buildSpecial turns a promo block into a ScrapedSpecial. strict rejects text
// that does not classify as any discount family.
func buildSpecial(title, text, markup string, now time.Time, strict bool) (models.ScrapedSpecial, bool) {
	text = cleanText(text)
	if text == "" {
		return models.ScrapedSpecial{}, false
	}

	kind, ok := extract.ClassifyDiscount(text)
	if !ok {
		if strict {
			return models.ScrapedSpecial{}, false
		}
		kind = models.DiscountOther
	}

	title = cleanText(title)
	if title == "" {
		title = deriveTitle(text)
	}

	return models.ScrapedSpecial{
		Title:         title,
		Description:   text,
		DiscountType:  &kind,
		DiscountValue: extract.DiscountValue(kind, text),
		Conditions:    extract.Conditions(text, now),
		EndDate:       extract.EndDate(text, now),
		RawMarkup:     markup,
	}, true
}

// deriveTitle uses the first sentence, cut at a word boundary.
func deriveTitle(text string) string {
	if i := strings.IndexAny(text, ".!"); i > 0 {
		text = text[:i+1]
	}
	if len(text) <= maxTitleLen {
		return strings.TrimSpace(text)
	}
	cut := text[:maxTitleLen]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

type selectorSpecials struct {
	sel config.SelectorConfig
}

func (selectorSpecials) Name() string { return "selector-specials" }

func (e selectorSpecials) ExtractSpecials(doc *Document, now time.Time) []models.ScrapedSpecial {
	var out []models.ScrapedSpecial
	seen := map[string]bool{}
	for _, containerSel := range e.sel.SpecialContainer {
		doc.Doc.Find(containerSel).Each(func(_ int, s *goquery.Selection) {
			markup, _ := goquery.OuterHtml(s)
			sp, ok := buildSpecial(firstText(s, e.sel.SpecialTitle), s.Text(), markup, now, false)
			if !ok || seen[sp.Title] {
				return
			}
			seen[sp.Title] = true
			out = append(out, sp)
		})
	}
	return out
}

var promoHint = regexp.MustCompile(`(?i)special|promo|offer|concession|deal|incentive`)

// genericSpecials looks for elements whose class or id hints at a promo and
// whose text reads like a discount.
type genericSpecials struct{}

func (genericSpecials) Name() string { return "generic-specials" }

func (genericSpecials) ExtractSpecials(doc *Document, now time.Time) []models.ScrapedSpecial {
	var out []models.ScrapedSpecial
	seen := map[string]bool{}
	doc.Doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if !promoHint.MatchString(class + " " + id) {
			return
		}
		// an enclosing promo block already covers this one
		if s.ParentsFiltered("[class], [id]").FilterFunction(func(_ int, p *goquery.Selection) bool {
			pc, _ := p.Attr("class")
			pid, _ := p.Attr("id")
			return promoHint.MatchString(pc + " " + pid)
		}).Length() > 0 {
			return
		}
		if len(cleanText(s.Text())) > maxCardText {
			return
		}
		markup, _ := goquery.OuterHtml(s)
		title := cleanText(s.Find("h1, h2, h3, h4, strong").First().Text())
		sp, ok := buildSpecial(title, s.Text(), markup, now, true)
		if !ok || seen[sp.Title] {
			return
		}
		seen[sp.Title] = true
		out = append(out, sp)
	})
	return out
}

// targetPlans returns the plan names a special mentions, or nil when it
// names none and so applies building-wide.
func targetPlans(sp models.ScrapedSpecial, plans []models.ScrapedFloorPlan) []string {
	var out []string
	seen := map[string]bool{}
	for _, fp := range plans {
		if fp.Name == "" || seen[fp.Name] {
			continue
		}
		re, err := regexp.Compile(`(?i)(?:^|[^\w])` + regexp.QuoteMeta(fp.Name) + `(?:[^\w]|$)`)
		if err != nil {
			continue
		}
		if re.MatchString(sp.Description) {
			seen[fp.Name] = true
			out = append(out, fp.Name)
		}
	}
	return out
}

// ============================================================================
// Helpers
// ============================================================================

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orElse(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func firstText(root *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if t := cleanText(root.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func firstImage(root *goquery.Selection, selectors []string, base string) string {
	for _, sel := range selectors {
		img := root.Find(sel).First()
		if img.Length() == 0 && goquery.NodeName(root) == "img" {
			img = root
		}
		if src := imageSource(img); src != "" {
			return absURL(base, src)
		}
	}
	return ""
}

func imageSource(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func absURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case map[string]any:
				if u := str(it["url"]); u != "" {
					out = append(out, u)
				}
			}
		}
		return out
	case map[string]any:
		if u := str(t["url"]); u != "" {
			return []string{u}
		}
	}
	return nil
}

func number(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || strings.EqualFold(t, "yes")
	}
	return false
}
