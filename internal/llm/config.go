package llm

import (
	"fmt"
)

const (
	DefaultAPIURL  = "https://openrouter.ai/api/v1"
	DefaultTimeout = 120
)

// Config holds the connection settings of one chat-completions endpoint.
// The API key is per job for the api translator backend, so a Config is
// built for every translator construction rather than shared.
type Config struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	AppName     string  `json:"app_name"`
}

func NewConfig(apiKey, apiURL, model string) *Config {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Config{
		APIKey:      apiKey,
		APIURL:      apiURL,
		Model:       model,
		MaxTokens:   4096,
		Temperature: 0.2,
		Timeout:     DefaultTimeout,
		AppName:     "latexmt-web",
	}
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}
	return headers
}
