package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider types.
const (
	TypeDTEKJSON = "dtek_json"
	TypeDTEKHTML = "dtek_html"
	TypeYasno    = "yasno"
	TypeESvitlo  = "esvitlo"
)

type LokiConfig struct {
	URL        string        `yaml:"url"`       // http://loki:3100
	TenantID   string        `yaml:"tenant_id"` // optional multi-tenancy
	Job        string        `yaml:"job"`       // label value, default: outage-ingester
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

type VictoriaConfig struct {
	URL        string        `yaml:"url"` // http://victoria-metrics:8428
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

type Sinks struct {
	Loki     LokiConfig     `yaml:"loki"`
	Victoria VictoriaConfig `yaml:"victoria"`
}

type Server struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

type DTEKJSON struct {
	URLs     []string      `yaml:"urls"`
	FreshFor time.Duration `yaml:"fresh_for"` // payload age, in whole days, still accepted as fresh
	// MaybeHalvesAsFull reads mfirst/msecond as whole-hour outages.
	MaybeHalvesAsFull *bool         `yaml:"maybe_halves_as_full"`
	Timeout           time.Duration `yaml:"timeout"`
}

type DTEKHTML struct {
	URL               string        `yaml:"url"`
	UserAgent         string        `yaml:"user_agent"`
	MaybeHalvesAsFull *bool         `yaml:"maybe_halves_as_full"`
	Timeout           time.Duration `yaml:"timeout"`
}

type Yasno struct {
	Region     string        `yaml:"region"`   // region name, resolved through the regions catalogue
	Provider   string        `yaml:"provider"` // DSO name
	RegionID   int           `yaml:"region_id"`
	DSOID      int           `yaml:"dso_id"`
	RegionsURL string        `yaml:"regions_url"`
	OutagesURL string        `yaml:"outages_url"` // with {region_id} and {dso_id} placeholders
	Timeout    time.Duration `yaml:"timeout"`
}

type ESvitlo struct {
	BaseURL     string        `yaml:"base_url"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	AccountID   string        `yaml:"account_id"`
	Region      string        `yaml:"region"`
	NotLoggedIn string        `yaml:"not_logged_in"` // value of error.err on an expired session
	Timeout     time.Duration `yaml:"timeout"`
}

type Zone struct {
	ID       string   `yaml:"id"`
	Type     string   `yaml:"type"`
	Group    string   `yaml:"group"`
	DTEKJSON DTEKJSON `yaml:"dtek_json"`
	DTEKHTML DTEKHTML `yaml:"dtek_html"`
	Yasno    Yasno    `yaml:"yasno"`
	ESvitlo  ESvitlo  `yaml:"esvitlo"`
	// Fixture serves payloads from this file or directory instead of the network.
	Fixture       string  `yaml:"fixture"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	UserAgent     string  `yaml:"user_agent"`
}

type Config struct {
	Location     string            `yaml:"location"`
	Interval     time.Duration     `yaml:"interval"`
	Lookahead    time.Duration     `yaml:"lookahead"`
	RegionsTTL   time.Duration     `yaml:"regions_ttl"`
	Server       Server            `yaml:"server"`
	Translations map[string]string `yaml:"translations"`
	Zones        []Zone            `yaml:"zones"`
	Sinks        Sinks             `yaml:"sinks"`
}

const (
	DefaultDTEKHTMLURL     = "https://www.dtek-kem.com.ua/ua/shutdowns"
	DefaultYasnoRegionsURL = "https://app.yasno.ua/api/blackout-service/public/shutdowns/addresses/v2/regions"
	DefaultYasnoOutagesURL = "https://app.yasno.ua/api/blackout-service/public/shutdowns/regions/{region_id}/dsos/{dso_id}/planned-outages"
	DefaultNotLoggedIn     = "NOT_LOGGED_IN"
)

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates every zone.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	c.withDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) withDefaults() {
	if c.Location == "" {
		c.Location = "Europe/Kyiv"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Minute
	}
	if c.Lookahead == 0 {
		c.Lookahead = 24 * time.Hour
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":9120"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Sinks.Loki.Job == "" {
		c.Sinks.Loki.Job = "outage-ingester"
	}
	if c.Sinks.Loki.Timeout == 0 {
		c.Sinks.Loki.Timeout = 10 * time.Second
	}
	if c.Sinks.Loki.MaxRetries == 0 {
		c.Sinks.Loki.MaxRetries = 3
	}
	if c.Sinks.Loki.Backoff == 0 {
		c.Sinks.Loki.Backoff = 500 * time.Millisecond
	}
	if c.Sinks.Victoria.Timeout == 0 {
		c.Sinks.Victoria.Timeout = 10 * time.Second
	}
	if c.Sinks.Victoria.MaxRetries == 0 {
		c.Sinks.Victoria.MaxRetries = 3
	}
	if c.Sinks.Victoria.Backoff == 0 {
		c.Sinks.Victoria.Backoff = 500 * time.Millisecond
	}
	for i := range c.Zones {
		z := &c.Zones[i]
		if z.ID == "" {
			z.ID = fmt.Sprintf("%s-%d", z.Type, i+1)
		}
		if z.DTEKJSON.FreshFor == 0 {
			z.DTEKJSON.FreshFor = 48 * time.Hour
		}
		if z.DTEKJSON.Timeout == 0 {
			z.DTEKJSON.Timeout = 10 * time.Second
		}
		if z.DTEKHTML.URL == "" {
			z.DTEKHTML.URL = DefaultDTEKHTMLURL
		}
		if z.DTEKHTML.Timeout == 0 {
			z.DTEKHTML.Timeout = 60 * time.Second
		}
		if z.Yasno.RegionsURL == "" {
			z.Yasno.RegionsURL = DefaultYasnoRegionsURL
		}
		if z.Yasno.OutagesURL == "" {
			z.Yasno.OutagesURL = DefaultYasnoOutagesURL
		}
		if z.Yasno.Timeout == 0 {
			z.Yasno.Timeout = 60 * time.Second
		}
		if z.ESvitlo.NotLoggedIn == "" {
			z.ESvitlo.NotLoggedIn = DefaultNotLoggedIn
		}
		if z.ESvitlo.Timeout == 0 {
			z.ESvitlo.Timeout = 60 * time.Second
		}
		if z.ESvitlo.BaseURL != "" && !strings.HasSuffix(z.ESvitlo.BaseURL, "/") {
			z.ESvitlo.BaseURL += "/"
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("location %q: %w", c.Location, err)
	}
	if len(c.Zones) == 0 {
		return errors.New("no zones configured")
	}
	seen := map[string]bool{}
	for _, z := range c.Zones {
		if seen[z.ID] {
			return fmt.Errorf("zone %q: duplicate id", z.ID)
		}
		seen[z.ID] = true
		if err := z.validate(); err != nil {
			return fmt.Errorf("zone %q: %w", z.ID, err)
		}
	}
	return nil
}

func (z Zone) validate() error {
	switch z.Type {
	case TypeDTEKJSON:
		if len(z.DTEKJSON.URLs) == 0 && z.Fixture == "" {
			return errors.New("dtek_json.urls is required")
		}
		if z.Group == "" {
			return errors.New("group is required")
		}
	case TypeDTEKHTML:
		if z.Group == "" {
			return errors.New("group is required")
		}
	case TypeYasno:
		if z.Group == "" {
			return errors.New("group is required")
		}
		if z.Yasno.RegionID == 0 && z.Yasno.Region == "" {
			return errors.New("yasno.region or yasno.region_id is required")
		}
		if z.Yasno.DSOID == 0 && z.Yasno.Provider == "" {
			return errors.New("yasno.provider or yasno.dso_id is required")
		}
	case TypeESvitlo:
		// the group is discovered from the account
		if z.ESvitlo.BaseURL == "" && z.Fixture == "" {
			return errors.New("esvitlo.base_url is required")
		}
		if z.ESvitlo.Username == "" || z.ESvitlo.Password == "" {
			return errors.New("esvitlo.username and esvitlo.password are required")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown provider type: %s", z.Type)
	}
	return nil
}

// HalvesAsFull resolves an optional policy flag, defaulting to true.
func HalvesAsFull(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}
