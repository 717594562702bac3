package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/workhub/internal/events"
)

type Options struct {
	URL       string
	User      string
	Password  string
	Transport http.RoundTripper
}

// NewClient connects to Elasticsearch and checks the cluster is reachable.
func NewClient(ctx context.Context, opts Options, l *slog.Logger) (*elasticsearch.Client, error) {
	l.Info("es_connecting", "url", opts.URL, "user", opts.User)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{opts.URL},
		Username:  opts.User,
		Password:  opts.Password,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("es: create client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("es: info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("es: info returned %s: %s", res.Status(), body)
	}

	l.Info("es_connected")
	return client, nil
}

// AuditSink indexes auth events so security reviews can query them.
type AuditSink struct {
	client *elasticsearch.Client
	index  string
}

func NewAuditSink(client *elasticsearch.Client, index string) *AuditSink {
	return &AuditSink{client: client, index: index}
}

func (s *AuditSink) Publish(ctx context.Context, ev events.Event) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ev); err != nil {
		return fmt.Errorf("es: encode event: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		&buf,
		s.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("es: index event: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("es: index event: %s", res.Status())
	}
	return nil
}
