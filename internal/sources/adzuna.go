package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gigbot/discovery-service/internal/fetch"
	"gigbot/discovery-service/internal/model"
	"gigbot/discovery-service/internal/scraper"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 3 // max 150 results per query
)

// DefaultAdzunaQueries are searched for each run.
var DefaultAdzunaQueries = []string{"freelance developer", "web developer contract", "part time programmer"}

// Adzuna queries the Adzuna public jobs API.
// If AppID or AppKey is empty it yields nothing, so the run is a no-op success.
type Adzuna struct {
	AppID   string
	AppKey  string
	Country string // "fr", "gb", "us", …
	Queries []string
	BaseURL string
}

// NewAdzuna constructs the adapter.
func NewAdzuna(appID, appKey, country string) *Adzuna {
	if country == "" {
		country = "fr"
	}
	return &Adzuna{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		Queries: DefaultAdzunaQueries,
		BaseURL: adzunaBaseURL,
	}
}

func (a *Adzuna) Name() string { return NameAdzuna }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	SalaryMin   float64 `json:"salary_min"`
	SalaryMax   float64 `json:"salary_max"`
	RedirectURL string  `json:"redirect_url"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
}

func (a *Adzuna) pageURL(query string, page int) string {
	params := url.Values{}
	params.Set("app_id", a.AppID)
	params.Set("app_key", a.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", query)
	params.Set("sort_by", "date")
	params.Set("content-type", "application/json")
	return fmt.Sprintf("%s/%s/search/%d?%s", strings.TrimRight(a.BaseURL, "/"), a.Country, page, params.Encode())
}

func (a *Adzuna) Candidates(ctx context.Context, f scraper.Fetcher) iter.Seq2[model.Candidate, error] {
	return func(yield func(model.Candidate, error) bool) {
		if a.AppID == "" || a.AppKey == "" {
			return
		}
		for _, query := range a.Queries {
			for page := 1; page <= adzunaMaxPages; page++ {
				resp, err := f.Fetch(ctx, fetch.Request{
					Method: http.MethodGet,
					URL:    a.pageURL(query, page),
					Header: http.Header{"Accept": {"application/json"}},
				})
				if err != nil {
					yield(model.Candidate{}, fmt.Errorf("adzuna %q page %d: %w", query, page, err))
					return
				}

				var apiResp adzunaResponse
				if err := json.Unmarshal(resp.Body, &apiResp); err != nil {
					yield(model.Candidate{}, fmt.Errorf("adzuna %q page %d: json unmarshal: %w", query, page, err))
					return
				}

				for _, r := range apiResp.Results {
					if !yield(adzunaCandidate(r)) {
						return
					}
				}
				if len(apiResp.Results) < adzunaPageSize {
					break // last page
				}
			}
		}
	}
}

func adzunaCandidate(r adzunaResult) (model.Candidate, error) {
	link := r.RedirectURL
	if link == "" && r.ID != "" {
		link = "adzuna:" + r.ID
	}
	if r.Title == "" || link == "" {
		return model.Candidate{}, &scraper.ParseError{Source: NameAdzuna, Item: "result " + r.ID, Err: fmt.Errorf("missing title or url")}
	}

	body := r.Description
	if r.Company.DisplayName != "" {
		body = r.Company.DisplayName + ": " + body
	}

	var price string
	switch {
	case r.SalaryMin > 0 && r.SalaryMax > r.SalaryMin:
		price = fmt.Sprintf("%.0f-%.0f", r.SalaryMin, r.SalaryMax)
	case r.SalaryMin > 0:
		price = fmt.Sprintf("%.0f", r.SalaryMin)
	}
	return model.Candidate{
		Source:    NameAdzuna,
		Title:     r.Title,
		Body:      body,
		Link:      link,
		PriceText: price,
	}, nil
}
