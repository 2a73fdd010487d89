package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"gigbot/discovery-service/internal/fetch"
	"gigbot/discovery-service/internal/model"
	"gigbot/discovery-service/internal/scraper"
)

// DefaultCraigslistCities are the tech hubs searched when CRAIGSLIST_CITIES is unset.
var DefaultCraigslistCities = []string{
	"sfbay", "newyork", "seattle", "losangeles", "boston",
	"austin", "chicago", "denver", "portland", "sandiego",
	"atlanta", "phoenix", "dallas", "miami", "washingtondc",
}

const (
	craigslistPageSize = 120
	craigslistMaxPages = 3
)

// Craigslist scrapes the computer gigs (cpg) category of each city.
type Craigslist struct {
	Cities   []string
	MaxPages int

	// baseURL maps a city to its site root; tests point it at httptest.
	baseURL func(city string) string
}

// NewCraigslist returns an adapter for cities, or DefaultCraigslistCities when empty.
func NewCraigslist(cities []string) *Craigslist {
	if len(cities) == 0 {
		cities = DefaultCraigslistCities
	}
	return &Craigslist{
		Cities:   cities,
		MaxPages: craigslistMaxPages,
		baseURL:  func(city string) string { return "https://" + city + ".craigslist.org" },
	}
}

func (c *Craigslist) Name() string { return NameCraigslist }

func (c *Craigslist) pageURL(city string, page int) string {
	u := c.baseURL(city) + "/search/cpg"
	if page > 0 {
		u += fmt.Sprintf("?s=%d", page*craigslistPageSize)
	}
	return u
}

func (c *Craigslist) Candidates(ctx context.Context, f scraper.Fetcher) iter.Seq2[model.Candidate, error] {
	return func(yield func(model.Candidate, error) bool) {
		for _, city := range c.Cities {
			for page := 0; page < c.MaxPages; page++ {
				pageURL := c.pageURL(city, page)
				resp, err := f.Fetch(ctx, fetch.Request{Method: http.MethodGet, URL: pageURL})
				if err != nil {
					yield(model.Candidate{}, fmt.Errorf("craigslist %s: %w", city, err))
					return
				}

				doc, err := html.Parse(bytes.NewReader(resp.Body))
				if err != nil {
					yield(model.Candidate{}, fmt.Errorf("craigslist %s: parse page: %w", city, err))
					return
				}

				rows := listingRows(doc)
				if len(rows) == 0 {
					break
				}
				for i, row := range rows {
					cand, err := parseCraigslistRow(row, pageURL)
					if err != nil {
						err = &scraper.ParseError{Source: NameCraigslist, Item: fmt.Sprintf("%s row %d", city, i), Err: err}
					}
					if !yield(cand, err) {
						return
					}
				}
			}
		}
	}
}

// listingRows supports both the legacy result-row markup and the static search
// markup served to clients without JavaScript.
func listingRows(doc *html.Node) []*html.Node {
	if rows := findAll(doc, "li", "result-row"); len(rows) > 0 {
		return rows
	}
	return findAll(doc, "li", "cl-static-search-result")
}

func parseCraigslistRow(row *html.Node, pageURL string) (model.Candidate, error) {
	var title, link, price, hood string

	if a := findFirst(row, "a", "result-title"); a != nil {
		title, link = text(a), attr(a, "href")
		price = text(findFirst(row, "span", "result-price"))
		hood = text(findFirst(row, "span", "result-hood"))
	} else {
		title = text(findFirst(row, "div", "title"))
		if title == "" {
			title = attr(row, "title")
		}
		if a := findFirst(row, "a", ""); a != nil {
			link = attr(a, "href")
		}
		price = text(findFirst(row, "div", "price"))
		hood = text(findFirst(row, "div", "location"))
	}

	if title == "" || link == "" {
		return model.Candidate{}, errors.New("missing title or link")
	}

	body := title
	if hood != "" {
		body = title + " - " + strings.Trim(hood, "() ")
	}
	return model.Candidate{
		Source:    NameCraigslist,
		Title:     title,
		Body:      body,
		Link:      absolute(pageURL, link),
		PriceText: price,
	}, nil
}
