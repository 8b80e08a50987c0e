package jikan

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultBaseURL = "https://api.jikan.moe/v4"
	maxPageLimit   = 25
	firstAnimeYear = 1917
)

var ErrInvalidParameter = errors.New("jikan: invalid parameter")

var seasons = map[string]struct{}{"winter": {}, "spring": {}, "summer": {}, "fall": {}}

// Client builds Jikan v4 URLs and fetches them through the gateway.
type Client struct {
	gateway *Gateway
	baseURL string
}

func NewClient(gateway *Gateway, baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{gateway: gateway, baseURL: baseURL}
}

func (c *Client) AnimeByID(ctx context.Context, id int) (AnimeResponse, error) {
	if id <= 0 {
		return AnimeResponse{}, fmt.Errorf("%w: id must be positive", ErrInvalidParameter)
	}
	return Fetch[AnimeResponse](ctx, c.gateway, fmt.Sprintf("%s/anime/%d/full", c.baseURL, id))
}

func (c *Client) Search(ctx context.Context, query string, page, limit int) (AnimeListResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return AnimeListResponse{}, fmt.Errorf("%w: query is required", ErrInvalidParameter)
	}

	params := pageParams(page, limit)
	params.Set("q", query)
	return Fetch[AnimeListResponse](ctx, c.gateway, c.baseURL+"/anime?"+params.Encode())
}

func (c *Client) SeasonNow(ctx context.Context, page, limit int) (AnimeListResponse, error) {
	return Fetch[AnimeListResponse](ctx, c.gateway, c.baseURL+"/seasons/now?"+pageParams(page, limit).Encode())
}

func (c *Client) SeasonUpcoming(ctx context.Context, page, limit int) (AnimeListResponse, error) {
	return Fetch[AnimeListResponse](ctx, c.gateway, c.baseURL+"/seasons/upcoming?"+pageParams(page, limit).Encode())
}

func (c *Client) Season(ctx context.Context, year int, season string, page int) (AnimeListResponse, error) {
	season = strings.ToLower(strings.TrimSpace(season))
	if _, ok := seasons[season]; !ok {
		return AnimeListResponse{}, fmt.Errorf("%w: unknown season %q", ErrInvalidParameter, season)
	}
	if year < firstAnimeYear {
		return AnimeListResponse{}, fmt.Errorf("%w: year %d out of range", ErrInvalidParameter, year)
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(clampPage(page)))
	return Fetch[AnimeListResponse](ctx, c.gateway, fmt.Sprintf("%s/seasons/%d/%s?%s", c.baseURL, year, season, params.Encode()))
}

func (c *Client) Top(ctx context.Context, page, limit int) (AnimeListResponse, error) {
	return Fetch[AnimeListResponse](ctx, c.gateway, c.baseURL+"/top/anime?"+pageParams(page, limit).Encode())
}

func pageParams(page, limit int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(clampPage(page)))
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	return params
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampLimit(limit int) int {
	if limit < 1 || limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
