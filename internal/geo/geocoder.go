package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ErrNotFound means the provider returned no match for the address.
var ErrNotFound = errors.New("geo: address not found")

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// NominatimClient talks to a Nominatim-compatible geocoding endpoint.
type NominatimClient struct {
	BaseURL string
	Client  *http.Client
}

func NewNominatimClient(baseURL string) *NominatimClient {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &NominatimClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *NominatimClient) Geocode(ctx context.Context, address string) (Point, error) {
	if c.Client == nil {
		return Point{}, errors.New("geo: http client is nil")
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Point{}, err
	}
	req.Header.Set("User-Agent", "datachat/1.0")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Point{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Point{}, fmt.Errorf("geo: status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Point{}, err
	}
	if len(results) == 0 {
		return Point{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: bad latitude %q", results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: bad longitude %q", results[0].Lon)
	}
	return Point{Lat: lat, Lng: lng}, nil
}

// ResolveWithFallback geocodes the address, progressively dropping the
// leading comma-separated component on a miss. Over-qualified addresses
// (extraneous leading tokens a geocoder rejects) still resolve from their
// tail components. Returns ErrNotFound when no component combination
// matches.
func ResolveWithFallback(ctx context.Context, g Geocoder, address string) (Point, error) {
	parts := strings.Split(address, ", ")
	for i := 0; i < len(parts); i++ {
		candidate := strings.Join(parts[i:], ", ")
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		p, err := g.Geocode(ctx, candidate)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Point{}, err
		}
	}
	return Point{}, ErrNotFound
}
