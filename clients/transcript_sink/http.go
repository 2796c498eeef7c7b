package transcript_sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type clientImpl struct {
	endpoint   string
	httpClient *http.Client
}

type Config struct {
	Endpoint string
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.Endpoint == "" {
		return nil, errors.New("missing parameter: cfg.Endpoint")
	}

	return &clientImpl{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{},
	}, nil
}

func (client *clientImpl) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("transcript sink responded with status %d", resp.StatusCode)
	}

	return nil
}
