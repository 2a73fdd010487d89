package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"gigbot/discovery-service/internal/fetch"
	"gigbot/discovery-service/internal/model"
	"gigbot/discovery-service/internal/scraper"
)

// DefaultSubreddits are searched when REDDIT_SUBREDDITS is unset.
var DefaultSubreddits = []string{"forhire", "jobbit", "jobsearch", "hiring"}

const redditBaseURL = "https://www.reddit.com"

// Reddit searches subreddits for posts flaired "Hiring".
type Reddit struct {
	BaseURL    string
	Subreddits []string
}

// NewReddit returns an adapter for subreddits, or DefaultSubreddits when empty.
func NewReddit(subreddits []string) *Reddit {
	if len(subreddits) == 0 {
		subreddits = DefaultSubreddits
	}
	return &Reddit{BaseURL: redditBaseURL, Subreddits: subreddits}
}

func (r *Reddit) Name() string { return NameReddit }

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SelfText  string `json:"selftext"`
	Permalink string `json:"permalink"`
}

func (r *Reddit) searchURL(sub string) string {
	q := url.Values{}
	q.Set("q", `flair:"Hiring"`)
	q.Set("restrict_sr", "on")
	q.Set("sort", "new")
	return fmt.Sprintf("%s/r/%s/search.json?%s", strings.TrimRight(r.BaseURL, "/"), url.PathEscape(sub), q.Encode())
}

func (r *Reddit) Candidates(ctx context.Context, f scraper.Fetcher) iter.Seq2[model.Candidate, error] {
	return func(yield func(model.Candidate, error) bool) {
		for _, sub := range r.Subreddits {
			resp, err := f.Fetch(ctx, fetch.Request{
				Method: http.MethodGet,
				URL:    r.searchURL(sub),
				Header: http.Header{"Accept": {"application/json"}},
			})
			if err != nil {
				yield(model.Candidate{}, fmt.Errorf("r/%s: %w", sub, err))
				return
			}

			var listing redditListing
			if err := json.Unmarshal(resp.Body, &listing); err != nil {
				yield(model.Candidate{}, fmt.Errorf("r/%s: decode listing: %w", sub, err))
				return
			}

			for _, child := range listing.Data.Children {
				post := child.Data
				if post.Title == "" || post.Permalink == "" {
					perr := &scraper.ParseError{Source: NameReddit, Item: "post " + post.ID, Err: errors.New("missing title or permalink")}
					if !yield(model.Candidate{}, perr) {
						return
					}
					continue
				}
				c := model.Candidate{
					Source: NameReddit,
					Title:  post.Title,
					Body:   post.SelfText,
					Link:   redditBaseURL + post.Permalink,
				}
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}
