package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Suggestion is a low-confidence candidate from the similarity store. It is
// never merged into the exact result set.
type Suggestion struct {
	AssetID       string  `json:"asset_id"`
	Score         float64 `json:"score"`
	LowConfidence bool    `json:"low_confidence"`
}

// Suggester returns candidate asset ids for free text. Nil = disabled.
type Suggester interface {
	Suggest(ctx context.Context, text string, limit int) ([]Suggestion, error)
}

// Formatter renders an already computed response as prose. Nil = disabled.
type Formatter interface {
	Format(ctx context.Context, text string, resp *Response) (string, error)
}

type suggestRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type suggestResponse struct {
	Results []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// VectorStoreClient queries a similarity search endpoint: POST {query, top_k} -> {results: [{id, score}]}.
type VectorStoreClient struct {
	URL    string
	Client *http.Client
}

func (c *VectorStoreClient) Suggest(ctx context.Context, text string, limit int) ([]Suggestion, error) {
	var out suggestResponse
	if err := postJSON(ctx, c.client(), c.URL, suggestRequest{Query: text, TopK: limit}, &out); err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	res := make([]Suggestion, 0, len(out.Results))
	for _, r := range out.Results {
		res = append(res, Suggestion{AssetID: r.ID, Score: r.Score, LowConfidence: true})
	}
	return res, nil
}

var (
	defaultSuggestClient = &http.Client{Timeout: 10 * time.Second}
	defaultFormatClient  = &http.Client{Timeout: 15 * time.Second}
)

// client never writes back to c; one VectorStoreClient serves every request.
func (c *VectorStoreClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return defaultSuggestClient
}

type formatRequest struct {
	Question string    `json:"question"`
	Answer   *Response `json:"answer"`
}

type formatResponse struct {
	Text string `json:"text"`
}

// FormatterClient posts the structured answer to a prose rendering endpoint.
type FormatterClient struct {
	URL    string
	Client *http.Client
}

func (c *FormatterClient) Format(ctx context.Context, text string, resp *Response) (string, error) {
	client := c.Client
	if client == nil {
		client = defaultFormatClient
	}
	var out formatResponse
	if err := postJSON(ctx, client, c.URL, formatRequest{Question: text, Answer: resp}, &out); err != nil {
		return "", fmt.Errorf("formatter: %w", err)
	}
	return out.Text, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
