// Package geo provides forward and reverse geocoding backed by Nominatim.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/pebbletrail/engine"
	"github.com/hrygo/pebbletrail/internal/profile"
	"github.com/hrygo/pebbletrail/internal/version"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements the engine's Geocoder port against a Nominatim
// instance. Requests are limited to one per second per the public Nominatim
// usage policy.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a geocoding client from the profile.
func NewClient(p *profile.Profile) *Client {
	baseURL := p.NominatimBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Postcode string `json:"postcode"`
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		Country  string `json:"country"`
	} `json:"address"`
}

// Forward resolves a postal code to coordinates. Returns
// engine.ErrLocationNotFound when Nominatim knows no such place.
func (c *Client) Forward(ctx context.Context, postalCode string) (*engine.Coordinates, error) {
	params := url.Values{}
	params.Set("postalcode", postalCode)
	params.Set("format", "json")
	params.Set("limit", "1")

	var results []searchResult
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, engine.ErrLocationNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid latitude in geocoding response")
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid longitude in geocoding response")
	}
	return &engine.Coordinates{Latitude: lat, Longitude: lon}, nil
}

// Reverse resolves coordinates to a human-readable address. Used for
// display only, never for matching.
func (c *Client) Reverse(ctx context.Context, coords engine.Coordinates) (*engine.Address, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	params.Set("format", "json")
	params.Set("addressdetails", "1")

	var result reverseResult
	if err := c.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}

	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}

	return &engine.Address{
		City:        city,
		PostalCode:  result.Address.Postcode,
		Country:     result.Address.Country,
		DisplayName: result.DisplayName,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait aborted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("User-Agent", fmt.Sprintf("pebbletrail/%s", version.Version))

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "geocoding request failed: %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("geocoding service returned %d for %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", path)
	}
	return nil
}
