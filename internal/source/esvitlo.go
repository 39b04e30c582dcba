package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/util"
)

const (
	esvitloLogin              = "api_main/login_api.json"
	esvitloAccounts           = "api_main_reg/short_list_ls_api.json"
	esvitloDetails            = "api_main_reg/all_details_ls_api.json"
	esvitloDisconnectionsPath = "api_main/get_user_disconnections_image_api.json"

	updatedPrefix = "Оновлено:"
)

// esvitloEnvelope wraps every response. error is an object on API errors
// and sometimes a bare string on login failures.
type esvitloEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

func (e esvitloEnvelope) errCode() string {
	var obj struct {
		Err json.RawMessage `json:"err"`
	}
	if err := json.Unmarshal(e.Error, &obj); err == nil && obj.Err != nil {
		return rawString(obj.Err)
	}
	return rawString(e.Error)
}

type esvitloPeriod struct {
	Start string `json:"start_time"`
	End   string `json:"end_time"`
}

type esvitloDay struct {
	Date       string          `json:"date_today"`
	Periods    []esvitloPeriod `json:"lst_time_disc"`
	LastUpdate string          `json:"last_update"`
}

type esvitloDisconnections struct {
	esvitloDay
	Tomorrow esvitloDay `json:"dict_tom"`
}

// ESvitlo reads disconnection lists behind a login session. It discovers
// the account and group from the account details when not configured.
type ESvitlo struct {
	zone        config.Zone
	cfg         config.ESvitlo
	f           util.Fetcher
	log         *zap.Logger
	loc         *time.Location
	clock       clock.Clock
	loggedIn    bool
	accountID   string
	group       string
	events      []model.Event
	updatedOn   time.Time
	lastPayload bool
}

func NewESvitlo(z config.Zone, f util.Fetcher, d Deps) *ESvitlo {
	d = d.withDefaults()
	z.ESvitlo.Timeout = defaultDur(z.ESvitlo.Timeout, defaultPageTimeout)
	return &ESvitlo{
		zone:      z,
		cfg:       z.ESvitlo,
		f:         f,
		log:       d.Log.Named("source.esvitlo").With(zap.String("zone", z.ID)),
		loc:       d.Location,
		clock:     d.Clock,
		accountID: z.ESvitlo.AccountID,
		group:     z.Group,
	}
}

func (p *ESvitlo) Name() string { return config.TypeESvitlo }

func (p *ESvitlo) Fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.discover(ctx); err != nil {
		p.log.Warn("account discovery failed, keeping previous schedule", zap.Error(err))
		return fmt.Errorf("esvitlo: %w", err)
	}
	data, err := p.call(ctx, esvitloDisconnectionsPath, url.Values{
		"a":        {p.accountID},
		"cherga":   {p.group},
		"mobile_v": {"True"},
	})
	if err != nil {
		p.log.Warn("disconnections failed, keeping previous schedule", zap.Error(err))
		return fmt.Errorf("esvitlo: %w", err)
	}
	var disc esvitloDisconnections
	if err := json.Unmarshal(data, &disc); err != nil {
		p.log.Warn("malformed disconnections payload", zap.String("payload", snippet(data)), zap.Error(err))
		return fmt.Errorf("esvitlo: decode: %w", err)
	}

	raw := append(p.dayEvents(disc.esvitloDay), p.dayEvents(disc.Tomorrow)...)
	p.events = schedule.Normalize(raw, schedule.MinuteGridEpsilon, p.loc)
	p.updatedOn = p.parseUpdated(firstNonEmpty(disc.Tomorrow.LastUpdate, disc.LastUpdate))
	p.lastPayload = true
	p.log.Debug("disconnections fetched", zap.Int("events", len(p.events)))
	return nil
}

// discover resolves the account id and the group once.
func (p *ESvitlo) discover(ctx context.Context) error {
	if p.accountID == "" {
		data, err := p.call(ctx, esvitloAccounts, url.Values{})
		if err != nil {
			return fmt.Errorf("accounts: %w", err)
		}
		var accounts struct {
			List []struct {
				A json.RawMessage `json:"a"`
			} `json:"lst_ls"`
		}
		if err := json.Unmarshal(data, &accounts); err != nil {
			return fmt.Errorf("decode accounts: %w", err)
		}
		if len(accounts.List) == 0 {
			return fmt.Errorf("no accounts: %w", ErrNoGroup)
		}
		p.accountID = rawString(accounts.List[0].A)
		p.log.Info("using first account", zap.String("account_id", p.accountID))
	}
	if p.group != "" {
		return nil
	}
	data, err := p.call(ctx, esvitloDetails, url.Values{"a": {p.accountID}})
	if err != nil {
		return fmt.Errorf("account details: %w", err)
	}
	var details struct {
		Queues []string `json:"lst_cherga"`
	}
	if err := json.Unmarshal(data, &details); err != nil {
		return fmt.Errorf("decode account details: %w", err)
	}
	if len(details.Queues) == 0 || strings.TrimSpace(details.Queues[0]) == "" {
		return ErrNoGroup
	}
	p.group = strings.TrimSpace(details.Queues[0])
	p.log.Info("discovered group", zap.String("group", p.group))
	return nil
}

// call posts form to path, logging in first when needed. A logged-out
// answer triggers exactly one re-login and one retry.
func (p *ESvitlo) call(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	if !p.loggedIn {
		if err := p.login(ctx); err != nil {
			return nil, err
		}
	}
	env, err := p.post(ctx, path, form)
	if err != nil {
		return nil, err
	}
	if p.loggedOut(env) {
		p.log.Info("session expired, logging in again", zap.String("path", path))
		p.loggedIn = false
		if err := p.login(ctx); err != nil {
			return nil, err
		}
		if env, err = p.post(ctx, path, form); err != nil {
			return nil, err
		}
		if p.loggedOut(env) {
			p.loggedIn = false
			return nil, ErrNotLoggedIn
		}
	}
	return env.Data, nil
}

func (p *ESvitlo) login(ctx context.Context) error {
	env, err := p.post(ctx, esvitloLogin, url.Values{
		"login_name": {p.cfg.Username},
		"pass_name":  {p.cfg.Password},
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	var data struct {
		Login bool `json:"login"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || !data.Login {
		p.log.Error("login rejected", zap.String("error", env.errCode()))
		return fmt.Errorf("login rejected: %w", ErrNotLoggedIn)
	}
	p.loggedIn = true
	p.log.Debug("logged in")
	return nil
}

func (p *ESvitlo) post(ctx context.Context, path string, form url.Values) (esvitloEnvelope, error) {
	b, err := p.f.Fetch(ctx, util.PostForm(p.cfg.BaseURL+path, form))
	if err != nil {
		return esvitloEnvelope{}, err
	}
	var env esvitloEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return esvitloEnvelope{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return env, nil
}

func (p *ESvitlo) loggedOut(env esvitloEnvelope) bool {
	return len(env.Error) > 0 && env.errCode() == p.cfg.NotLoggedIn
}

// dayEvents anchors one day's periods in Kyiv. A period whose end is
// before its start runs past midnight; an empty one is dropped.
func (p *ESvitlo) dayEvents(d esvitloDay) []model.Event {
	if d.Date == "" {
		return nil
	}
	day, err := time.ParseInLocation(schedule.LayoutDate, strings.TrimSpace(d.Date), schedule.Kyiv)
	if err != nil {
		p.log.Warn("unparseable day", zap.String("date", d.Date), zap.Error(err))
		return nil
	}
	var out []model.Event
	for _, period := range d.Periods {
		start, ok1 := parseClock(period.Start)
		end, ok2 := parseClock(period.End)
		if !ok1 || !ok2 {
			p.log.Warn("unparseable period", zap.String("start", period.Start), zap.String("end", period.End))
			continue
		}
		s, e := start.On(day), end.On(day)
		if e.Equal(s) {
			p.log.Warn("empty period", zap.String("date", d.Date), zap.String("start", period.Start))
			continue
		}
		if e.Before(s) {
			e = e.AddDate(0, 0, 1)
		}
		out = append(out, model.Event{Type: model.EventDefinite, Start: s.In(p.loc), End: e.In(p.loc)})
	}
	return out
}

// parseClock reads "HH:MM" or "HH:MM:SS". "24:00" is the next midnight.
func parseClock(s string) (schedule.TimeOfDay, bool) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return schedule.EndOfDay, true
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return schedule.TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, true
		}
	}
	return schedule.TimeOfDay{}, false
}

// parseUpdated reads "Оновлено: DD.MM.YYYY HH:MM" in Kyiv, else now.
func (p *ESvitlo) parseUpdated(s string) time.Time {
	if i := strings.Index(s, updatedPrefix); i >= 0 {
		v := strings.TrimSpace(s[i+len(updatedPrefix):])
		if t, err := time.ParseInLocation(schedule.LayoutDayFirst, v, schedule.Kyiv); err == nil {
			return t.In(p.loc)
		}
		p.log.Debug("unparseable last_update", zap.String("value", s))
	}
	return p.clock.Now().In(p.loc)
}

func (p *ESvitlo) CurrentEvent(at time.Time) (model.Event, bool) { return currentEvent(p, at, p.loc) }

func (p *ESvitlo) Events(start, end time.Time) []model.Event {
	return schedule.Overlapping(p.events, start, end, p.loc)
}

// ScheduledEvents is empty: the service only publishes confirmed periods.
func (p *ESvitlo) ScheduledEvents(start, end time.Time) []model.Event { return []model.Event{} }

func (p *ESvitlo) UpdatedOn() (time.Time, bool) {
	return p.updatedOn, p.lastPayload
}

func (p *ESvitlo) Groups() []string {
	if p.group == "" {
		return []string{}
	}
	return []string{p.group}
}

func (p *ESvitlo) Info() Info {
	return Info{
		Type:       p.Name(),
		ProviderID: p.accountID,
		Name:       "E-Svitlo (" + p.cfg.Username + ")",
		Region:     firstNonEmpty(p.cfg.Region, "sumy"),
		Group:      p.group,
	}
}
