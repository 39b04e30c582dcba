package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/util"
)

func notification(zone string) model.Notification {
	return model.Notification{
		Name:           model.EventDataChanged,
		ZoneID:         zone,
		ProviderID:     "dtek",
		ProviderType:   "dtek_json",
		Region:         "Київ",
		Group:          "1.1",
		LastDataChange: time.Date(2025, 12, 7, 10, 0, 0, 0, time.UTC),
		CorrelationID:  "6f1c2b0e-4d7a-4b8e-9a51-0d0c3f6b2a11",
	}
}

type failing struct{ calls int32 }

func (f *failing) Name() string { return "failing" }
func (f *failing) Push(context.Context, []model.Notification) error {
	atomic.AddInt32(&f.calls, 1)
	return errors.New("unreachable")
}

func TestBusFansOut(t *testing.T) {
	bus := NewBus(nil)
	mem := NewMemory(10)
	bad := &failing{}
	var pushed []string
	bus.OnPush = func(name string, err error) { pushed = append(pushed, name) }
	bus.Attach(bad)
	bus.Attach(mem)

	err := bus.Publish(context.Background(), notification("home"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "home -> failing")
	assert.Equal(t, int32(1), bad.calls)
	assert.Len(t, mem.Recent(), 1, "a failing sink does not stop the others")
	assert.Equal(t, []string{"failing", "memory"}, pushed)

	assert.ErrorIs(t, bus.Publish(context.Background(), model.Notification{}), ErrUnnamed)
	assert.NoError(t, bus.Publish(context.Background(), model.Notification{Name: "other"}))
}

func TestMemoryKeepsNewest(t *testing.T) {
	mem := NewMemory(2)
	for _, z := range []string{"a", "b", "c"} {
		require.NoError(t, mem.Push(context.Background(), []model.Notification{notification(z)}))
	}
	got := mem.Recent()
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ZoneID)
	assert.Equal(t, "b", got[1].ZoneID)
}

func TestLokiPush(t *testing.T) {
	var (
		body   []byte
		tenant string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		tenant = r.Header.Get("X-Scope-OrgID")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewLoki(config.LokiConfig{URL: srv.URL, TenantID: "home", Job: "outage-ingester", Timeout: time.Second})
	require.NoError(t, s.Push(context.Background(), []model.Notification{notification("home")}))
	assert.Equal(t, "home", tenant)

	var payload struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Streams, 1)
	st := payload.Streams[0]
	assert.Equal(t, "outage-ingester", st.Stream["job"])
	assert.Equal(t, "home", st.Stream["zone"])
	assert.Equal(t, model.EventDataChanged, st.Stream["event"])
	assert.Equal(t, "1765101600000000000", st.Values[0][0])

	var line model.Notification
	require.NoError(t, json.Unmarshal([]byte(st.Values[0][1]), &line))
	assert.Equal(t, notification("home"), line)
}

func TestLokiRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewLoki(config.LokiConfig{URL: srv.URL, Timeout: time.Second, MaxRetries: 3, Backoff: time.Millisecond})
	require.NoError(t, s.Push(context.Background(), []model.Notification{notification("home")}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, -10)
	err := s.Push(context.Background(), []model.Notification{notification("home")})
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrStatus)
	assert.Contains(t, err.Error(), "busy")
}

func TestVictoriaPush(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/import/prometheus", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	n := notification("home")
	n.Group = `quo"te`
	s := NewVictoria(config.VictoriaConfig{URL: srv.URL, Timeout: time.Second})
	require.NoError(t, s.Push(context.Background(), []model.Notification{n}))
	assert.Equal(t,
		`outage_data_changed{zone="home",provider_type="dtek_json",provider_id="dtek",group="quo\"te",region="Київ"} 1 1765101600000`+"\n",
		body)
	assert.True(t, strings.HasSuffix(body, "\n"))
	assert.NoError(t, s.Push(context.Background(), nil))
}

func TestSinksDefaultTimeout(t *testing.T) {
	l := NewLoki(config.LokiConfig{URL: "http://loki.test"}).(*lokiSink)
	assert.Equal(t, 10*time.Second, l.client.Timeout)
	v := NewVictoria(config.VictoriaConfig{URL: "http://victoria.test"}).(*victoriaSink)
	assert.Equal(t, 10*time.Second, v.client.Timeout)
}
