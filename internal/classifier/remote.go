package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxResponseBytes = 1 << 20

type predictRequest struct {
	Instances [][][][]float32 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// RemoteModel calls a model server exposing the TensorFlow Serving REST predict API.
type RemoteModel struct {
	endpoint string
	client   *http.Client
}

func NewRemoteModel(baseURL, name string, client *http.Client) (*RemoteModel, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse model url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("model url %q: unsupported scheme", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteModel{
		endpoint: base.String() + "/v1/models/" + url.PathEscape(name) + ":predict",
		client:   client,
	}, nil
}

func (m *RemoteModel) Endpoint() string {
	return m.endpoint
}

func (m *RemoteModel) Predict(ctx context.Context, input Tensor) ([]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: [][][][]float32{input.Nested()}})
	if err != nil {
		return nil, fmt.Errorf("encode instances: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model server: %w", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("model server status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server status %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("model server returned %d predictions for one instance", len(out.Predictions))
	}
	return out.Predictions[0], nil
}
