// Package countries looks up the country list used by the publisher forms.
//
// The list comes from the REST Countries API. Failures never reach the
// caller: they are logged and an empty list is returned, so forms still
// render without the picker.
package countries

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrlokans/libmanage/internal/config"
)

const allCountriesPath = "/all?fields=name,cca2,flags"

type Country struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Flag string `json:"flag"`
}

type apiCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2  string `json:"cca2"`
	Flags struct {
		PNG string `json:"png"`
	} `json:"flags"`
}

// Lister returns the countries sorted by name, or an empty list.
type Lister interface {
	Countries(ctx context.Context) []Country
}

// Fetcher fetches the list and reports failures.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Country, error)
}

// Client talks to the REST Countries API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func NewClient(cfg config.Countries) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(limit, 1),
	}
}

// Countries returns the sorted list, or an empty list on any failure.
func (c *Client) Countries(ctx context.Context) []Country {
	list, err := c.Fetch(ctx)
	if err != nil {
		log.Printf("[COUNTRIES] Error fetching countries: %v", err)
		return []Country{}
	}
	return list
}

// Fetch downloads the list and sorts it by name.
func (c *Client) Fetch(ctx context.Context) ([]Country, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+allCountriesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []apiCountry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	list := make([]Country, 0, len(raw))
	for _, r := range raw {
		list = append(list, Country{Name: r.Name.Common, Code: r.CCA2, Flag: r.Flags.PNG})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}
