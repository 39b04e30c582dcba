package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/util"
)

type lokiSink struct {
	cfg    config.LokiConfig
	client *http.Client
}

func NewLoki(cfg config.LokiConfig) Sink {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &lokiSink{cfg: cfg, client: util.NewHTTPClient(cfg.Timeout)}
}

func (l *lokiSink) Name() string { return "loki" }

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

func (l *lokiSink) Push(ctx context.Context, batch []model.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	payload := struct {
		Streams []lokiStream `json:"streams"`
	}{}
	for _, n := range batch {
		line, err := json.Marshal(n)
		if err != nil {
			return err
		}
		labels := map[string]string{
			"job":           l.cfg.Job,
			"event":         n.Name,
			"zone":          n.ZoneID,
			"provider_type": n.ProviderType,
			"group":         n.Group,
		}
		if n.Region != "" {
			labels["region"] = n.Region
		}
		// Loki expects ns timestamp as a decimal string
		payload.Streams = append(payload.Streams, lokiStream{
			Stream: labels,
			Values: [][2]string{{strconv.FormatInt(n.LastDataChange.UnixNano(), 10), string(line)}},
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return util.Retry(ctx, l.cfg.MaxRetries, l.cfg.Backoff, 8*l.cfg.Backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.URL+"/loki/api/v1/push", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if l.cfg.TenantID != "" {
			req.Header.Set("X-Scope-OrgID", l.cfg.TenantID)
		}
		if ua := l.cfg.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		return do(l.client, req)
	})
}
