package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

type PixabaySearchItem struct {
	Id            int64  `json:"id"`
	Tags          string `json:"tags"`
	WebFormatUrl  string `json:"webformatURL"`
	LargeImageUrl string `json:"largeImageURL"`
	ImageUrl      string `json:"imageURL"`
	ImageWidth    int    `json:"imageWidth"`
	ImageHeight   int    `json:"imageHeight"`
	UserId        int64  `json:"user_id"`
	User          string `json:"user"`
	PageUrl       string `json:"pageURL"`
}

type PixabaySearchResult struct {
	Total     int                 `json:"total"`
	TotalHits int                 `json:"totalHits"`
	Hits      []PixabaySearchItem `json:"hits"`
}

func (el PixabaySearchItem) toPhoto() Photo {
	original := el.ImageUrl
	if original == "" {
		original = el.LargeImageUrl
	}
	return Photo{
		ID:              el.Id,
		Width:           el.ImageWidth,
		Height:          el.ImageHeight,
		Photographer:    el.User,
		PhotographerURL: "https://pixabay.com/users/" + el.User + "-" + strconv.FormatInt(el.UserId, 10) + "/",
		Original:        original,
		Thumb:           el.WebFormatUrl,
	}
}

type PixabayApi struct {
	upstream *Upstream
	apiKey   string
	baseUrl  string
	pageSize int
}

const pixabayBaseUrl = "https://pixabay.com"

func NewPixabayApi(cfg *Config, cache *ReqCache) *PixabayApi {
	baseUrl := cfg.Pixabay.BaseUrl
	if baseUrl == "" {
		baseUrl = pixabayBaseUrl
	}
	return &PixabayApi{
		upstream: NewUpstream("pixabay", cfg.upstreamConfig(), cache),
		apiKey:   cfg.Pixabay.Key,
		baseUrl:  baseUrl + "/api/",
		pageSize: cfg.Pixabay.PageSize,
	}
}

func (api *PixabayApi) Type() string {
	return "pixabay"
}

func (api *PixabayApi) PageSize() int { return api.pageSize }

func (api *PixabayApi) Search(ctx context.Context, query string, page int, pageSize int) (QueryPageResult, error) {
	return fetchWindows(ctx, page, pageSize, api.PageSize(), func(ctx context.Context, upstreamPage int) (QueryPageResult, error) {
		return api.searchPage(ctx, query, upstreamPage)
	})
}

func (api *PixabayApi) searchPage(ctx context.Context, query string, page int) (QueryPageResult, error) {
	qParam := url.Values{}
	qParam.Add("key", api.apiKey)
	qParam.Add("q", query)
	qParam.Add("page", strconv.Itoa(page))
	qParam.Add("per_page", strconv.Itoa(api.PageSize()))
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseUrl+"?"+qParam.Encode(), nil)
	if err != nil {
		return QueryPageResult{}, err
	}

	data := PixabaySearchResult{}
	if err := api.upstream.GetJSON(ctx, getReq, &data); err != nil {
		return QueryPageResult{}, err
	}
	output := make([]Photo, len(data.Hits))
	for i, el := range data.Hits {
		output[i] = el.toPhoto()
	}
	// totalHits is how many results the API will actually page through.
	return QueryPageResult{Photos: output, TotalResults: data.TotalHits}, nil
}
