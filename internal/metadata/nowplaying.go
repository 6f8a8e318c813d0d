package metadata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NowPlaying is the out-of-band signal the station publishes. An empty
// Artist means nobody is singing: moderation, news, traffic — speech.
type NowPlaying struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// Fetcher returns the current now-playing info. Split out as an interface
// so the sampler can be tested without a live station.
type Fetcher interface {
	FetchNowPlaying() (NowPlaying, error)
}

// HTTPFetcher polls the station's now-playing JSON endpoint.
type HTTPFetcher struct {
	URL    string
	client *http.Client
}

func NewHTTPFetcher(url string) *HTTPFetcher {
	return &HTTPFetcher{
		URL:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (f *HTTPFetcher) FetchNowPlaying() (NowPlaying, error) {
	resp, err := f.client.Get(f.URL)
	if err != nil {
		return NowPlaying{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return NowPlaying{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var np NowPlaying
	if err := json.NewDecoder(resp.Body).Decode(&np); err != nil {
		return NowPlaying{}, err
	}
	return np, nil
}
