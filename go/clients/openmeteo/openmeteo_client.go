// Package openmeteo looks up elevation and current temperature for the
// location hints revealed by powerup cards.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcdev12/geoguess/go/clients"
	"github.com/mcdev12/geoguess/go/internal/game/geo"
)

type OpenMeteoClient struct {
	*clients.BaseClient
}

func NewOpenMeteoClient(baseURL string) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &OpenMeteoClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	client.SetHeader("Accept", "application/json")
	return client
}

type ElevationResponse struct {
	Elevation []float64 `json:"elevation"`
}

type CurrentWeather struct {
	Time          string   `json:"time"`
	Temperature2m *float64 `json:"temperature_2m"`
}

type ForecastResponse struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Current   CurrentWeather `json:"current"`
}

// Elevation returns the terrain height at p in meters.
func (c *OpenMeteoClient) Elevation(ctx context.Context, p geo.Point) (float64, error) {
	body, err := c.Get(ctx, ElevationEndpoint+"?"+coordinates(p).Encode())
	if err != nil {
		return 0, fmt.Errorf("failed to get elevation: %w", err)
	}

	var response ElevationResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if len(response.Elevation) == 0 {
		return 0, fmt.Errorf("no elevation returned for %.4f,%.4f", p.Lat, p.Lon)
	}
	return response.Elevation[0], nil
}

// Temperature returns the current air temperature at p in degrees Celsius.
func (c *OpenMeteoClient) Temperature(ctx context.Context, p geo.Point) (float64, error) {
	query := coordinates(p)
	query.Set("current", CurrentTemperature)

	body, err := c.Get(ctx, ForecastEndpoint+"?"+query.Encode())
	if err != nil {
		return 0, fmt.Errorf("failed to get forecast: %w", err)
	}

	var response ForecastResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	if response.Current.Temperature2m == nil {
		return 0, fmt.Errorf("no temperature returned for %.4f,%.4f", p.Lat, p.Lon)
	}
	return *response.Current.Temperature2m, nil
}

func coordinates(p geo.Point) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(p.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(p.Lon, 'f', 4, 64))
	return q
}
