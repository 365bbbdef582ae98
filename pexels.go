package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type PexelsPhoto struct {
	Id              int64          `json:"id"`
	Width           int            `json:"width"`
	Height          int            `json:"height"`
	Url             string         `json:"url"`
	Alt             string         `json:"alt"`
	Photographer    string         `json:"photographer"`
	PhotographerUrl string         `json:"photographer_url"`
	PhotographerId  int64          `json:"photographer_id"`
	AvgColor        string         `json:"avg_color"`
	Src             PexelsPhotoSrc `json:"src"`
}

type PexelsPhotoSrc struct {
	Original  string `json:"original"`
	Large     string `json:"large"`
	Medium    string `json:"medium"`
	Small     string `json:"small"`
	Portrait  string `json:"portrait"`
	Landscape string `json:"landscape"`
	Tiny      string `json:"tiny"`
}

type PexelsSearchResult struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Photos       []PexelsPhoto `json:"photos"`
	NextPage     string        `json:"next_page"`
}

func (p PexelsPhoto) toPhoto() Photo {
	return Photo{
		ID:              p.Id,
		Width:           p.Width,
		Height:          p.Height,
		Photographer:    p.Photographer,
		PhotographerURL: p.PhotographerUrl,
		Original:        p.Src.Original,
		Thumb:           p.Src.Medium,
	}
}

type PexelsApi struct {
	upstream *Upstream
	apiKey   string
	baseUrl  string
	pageSize int
}

const pexelsBaseUrl = "https://api.pexels.com"

func NewPexelsApi(cfg *Config, cache *ReqCache) *PexelsApi {
	baseUrl := cfg.Pexels.BaseUrl
	if baseUrl == "" {
		baseUrl = pexelsBaseUrl
	}
	return &PexelsApi{
		upstream: NewUpstream("pexels", cfg.upstreamConfig(), cache),
		apiKey:   cfg.Pexels.Key,
		baseUrl:  baseUrl + "/v1/search",
		pageSize: cfg.Pexels.PageSize,
	}
}

func (api *PexelsApi) Type() string {
	return "pexels"
}

// PageSize is the number of photos requested from Pexels per call, 80 at most.
func (api *PexelsApi) PageSize() int { return api.pageSize }

func (api *PexelsApi) Search(ctx context.Context, query string, page int, pageSize int) (QueryPageResult, error) {
	return fetchWindows(ctx, page, pageSize, api.PageSize(), func(ctx context.Context, upstreamPage int) (QueryPageResult, error) {
		return api.searchPage(ctx, query, upstreamPage)
	})
}

func (api *PexelsApi) searchPage(ctx context.Context, query string, page int) (QueryPageResult, error) {
	qParam := url.Values{}
	qParam.Add("query", query)
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(api.PageSize()))
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseUrl+"?"+qParam.Encode(), nil)
	if err != nil {
		return QueryPageResult{}, err
	}
	getReq.Header.Set("Authorization", api.apiKey)

	data := PexelsSearchResult{}
	if err := api.upstream.GetJSON(ctx, getReq, &data); err != nil {
		return QueryPageResult{}, err
	}
	output := make([]Photo, len(data.Photos))
	for i, el := range data.Photos {
		output[i] = el.toPhoto()
	}
	return QueryPageResult{Photos: output, TotalResults: data.TotalResults}, nil
}
