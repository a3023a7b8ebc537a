package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTImageGenerator calls an OpenAI-compatible /v1/images/generations endpoint.
type RESTImageGenerator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	size       string
	inline     bool
}

// NewRESTImageGenerator returns a generator that asks for base64 bytes when inline is true and for a
// hosted URL otherwise.
func NewRESTImageGenerator(baseURL, apiKey, model, size string, inline bool) *RESTImageGenerator {
	return &RESTImageGenerator{
		httpClient: &http.Client{Timeout: 90 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		size:       size,
		inline:     inline,
	}
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (g *RESTImageGenerator) GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error) {
	format := "url"
	if g.inline {
		format = "b64_json"
	}
	body, err := json.Marshal(imageRequest{Model: g.model, Prompt: prompt, N: 1, Size: g.size, ResponseFormat: format})
	if err != nil {
		return nil, fmt.Errorf("error marshaling image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating image request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: image provider returned 429", ErrUpstreamRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("image provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("error decoding image response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, errors.New("image provider returned no images")
	}

	first := out.Data[0]
	if first.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("error decoding image bytes: %w", err)
		}
		return &GeneratedImage{Data: data, ContentType: http.DetectContentType(data)}, nil
	}
	return &GeneratedImage{URL: first.URL}, nil
}
