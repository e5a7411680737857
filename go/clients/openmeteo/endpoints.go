package openmeteo

const (
	// Base URL
	BaseURL = "https://api.open-meteo.com"

	// API Endpoints
	ElevationEndpoint = "/v1/elevation"
	ForecastEndpoint  = "/v1/forecast"

	// Forecast variables
	CurrentTemperature = "temperature_2m"
)
