package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/util"
)

type victoriaSink struct {
	cfg    config.VictoriaConfig
	client *http.Client
}

func NewVictoria(cfg config.VictoriaConfig) Sink {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &victoriaSink{cfg: cfg, client: util.NewHTTPClient(cfg.Timeout)}
}

func (v *victoriaSink) Name() string { return "victoria" }

// Push imports one sample per notification in Prometheus text format:
//
//	outage_data_changed{zone="home",provider_type="dtek_json",group="1.1"} 1 1765100000000
func (v *victoriaSink) Push(ctx context.Context, batch []model.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, n := range batch {
		lbls := fmt.Sprintf(`zone="%s",provider_type="%s",provider_id="%s",group="%s"`,
			escape(n.ZoneID), escape(n.ProviderType), escape(n.ProviderID), escape(n.Group))
		if n.Region != "" {
			lbls += fmt.Sprintf(`,region="%s"`, escape(n.Region))
		}
		fmt.Fprintf(&buf, "outage_data_changed{%s} 1 %d\n", lbls, n.LastDataChange.UnixMilli())
	}
	body := buf.Bytes()

	return util.Retry(ctx, v.cfg.MaxRetries, v.cfg.Backoff, 8*v.cfg.Backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.URL+"/api/v1/import/prometheus", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "text/plain")
		if ua := v.cfg.UserAgent; ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		return do(v.client, req)
	})
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escape(s string) string { return labelEscaper.Replace(s) }

func do(c *http.Client, req *http.Request) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &util.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return nil
}
