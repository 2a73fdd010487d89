package filter

import (
	"regexp"
	"strconv"
	"strings"

	"gigbot/discovery-service/internal/model"
)

const (
	numPart  = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`
	multPart = `([km])?\b`
	symPart  = `([$€£₹])?`
	codePart = `(usd|eur|gbp|ugx|kes|ngn|inr|cad|aud|dollars?|euros?|pounds?|bucks)\b`
)

var (
	// "$100-200", "50 to 150 EUR", "1k - 2k USD", "1.5m - 2.5m"
	rangeRe = regexp.MustCompile(`(?i)` + symPart + `\s?` + numPart + multPart +
		`\s*(?:-|–|to)\s*` + symPart + `\s?` + numPart + multPart + `(?:\s*` + codePart + `)?`)

	// "between 10,000 and 20,000 UGX"
	betweenRe = regexp.MustCompile(`(?i)\bbetween\s+` + symPart + `\s?` + numPart + multPart +
		`\s+and\s+` + symPart + `\s?` + numPart + multPart + `(?:\s*` + codePart + `)?`)

	// "$500", "€250"
	symbolRe = regexp.MustCompile(`(?i)([$€£₹])\s?` + numPart + multPart)

	// "1000 UGX", "300 dollars"
	codeRe = regexp.MustCompile(`(?i)\b` + numPart + multPart + `\s*` + codePart)

	// "Budget: 5k", "Pay is 1m", "Job pays 50000"
	contextRe = regexp.MustCompile(`(?i)\b(?:budget|pay|pays|paying|paid|fee|price|rate|compensation)\b[^\d$€£₹\n]{0,12}?` +
		numPart + multPart)
)

var symbolCurrency = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"₹": "INR",
}

var wordCurrency = map[string]string{
	"dollar": "USD", "dollars": "USD", "bucks": "USD",
	"euro": "EUR", "euros": "EUR",
	"pound": "GBP", "pounds": "GBP",
}

// contextTailRe matches a budget context word at the end of the text preceding
// a range, as in "budget: 50-80" or "pays 1k to 2k".
var contextTailRe = regexp.MustCompile(`(?i)\b(?:budget|pay|pays|paying|paid|fee|price|rate|compensation)\b[^\d$€£₹\n]{0,12}$`)

// ExtractBudget returns the first budget found in text, or nil when nothing
// looks like money. A range carrying a currency or following a budget word wins
// over single amounts; a bare range ("3-5 pages", "555-1234") only counts when
// no currency-marked amount exists.
func ExtractBudget(text string) *model.Budget {
	if text == "" {
		return nil
	}
	betweenFirm, betweenBare := findRange(betweenRe, text)
	if betweenFirm != nil {
		return betweenFirm
	}
	rangeFirm, rangeBare := findRange(rangeRe, text)
	if rangeFirm != nil {
		return rangeFirm
	}
	if m := symbolRe.FindStringSubmatch(text); m != nil {
		if amt, ok := amount(m[2], m[3]); ok {
			return &model.Budget{Kind: model.BudgetFixed, Amount: amt, Currency: symbolCurrency[m[1]]}
		}
	}
	if m := codeRe.FindStringSubmatch(text); m != nil {
		if amt, ok := amount(m[1], m[2]); ok {
			return &model.Budget{Kind: model.BudgetFixed, Amount: amt, Currency: currencyCode(m[3])}
		}
	}
	if betweenBare != nil {
		return betweenBare
	}
	if rangeBare != nil {
		return rangeBare
	}
	if m := contextRe.FindStringSubmatch(text); m != nil {
		if amt, ok := amount(m[1], m[2]); ok {
			return &model.Budget{Kind: model.BudgetFixed, Amount: amt}
		}
	}
	return nil
}

// findRange scans every match of re, whose groups are sym1,num1,mult1,sym2,num2,
// mult2,code. It returns the first range with a currency or a preceding budget
// word as firm, and the first other well-ordered range as bare.
func findRange(re *regexp.Regexp, text string) (firm, bare *model.Budget) {
	for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
		m := make([]string, len(idx)/2)
		for i := range m {
			if idx[2*i] >= 0 {
				m[i] = text[idx[2*i]:idx[2*i+1]]
			}
		}
		lo, ok1 := amount(m[2], m[3])
		hi, ok2 := amount(m[5], m[6])
		if !ok1 || !ok2 || hi < lo {
			continue
		}

		var currency string
		switch {
		case m[1] != "":
			currency = symbolCurrency[m[1]]
		case m[4] != "":
			currency = symbolCurrency[m[4]]
		case m[7] != "":
			currency = currencyCode(m[7])
		}
		b := &model.Budget{Kind: model.BudgetRange, Min: lo, Max: hi, Currency: currency}
		if currency != "" || contextTailRe.MatchString(text[:idx[0]]) {
			return b, bare
		}
		if bare == nil {
			bare = b
		}
	}
	return nil, bare
}

func amount(num, mult string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(mult) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return v, true
}

func currencyCode(word string) string {
	w := strings.ToLower(word)
	if c, ok := wordCurrency[w]; ok {
		return c
	}
	return strings.ToUpper(w)
}
