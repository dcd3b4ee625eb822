package http

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/server/auth"
	"github.com/dkeye/Huddle/internal/server/chat"
	"github.com/dkeye/Huddle/internal/server/sfu"
	"github.com/dkeye/Huddle/internal/server/signal"
	"github.com/dkeye/Huddle/internal/server/store"
)

// NewDeps builds the in-memory backend described by cfg.
func NewDeps(cfg *config.Config) Deps {
	iss := auth.NewIssuer(cfg.Secret)
	st := store.New()
	rtcCfg := webrtc.Configuration{}
	if len(cfg.Call.ICEServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.Call.ICEServers}}
	}
	return Deps{
		Issuer: iss,
		Store:  st,
		Chat: &chat.Server{
			Store:      st,
			Hubs:       chat.NewHubManager(),
			Policy:     chat.SimplePolicy{},
			Limiter:    chat.NewRateLimiter(cfg.Rate.Limit, cfg.Rate.Interval),
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
		},
		Signal: &signal.Controller{
			Registry:  signal.NewRegistry(),
			Relays:    sfu.NewRelayManager(),
			Issuer:    iss,
			RTC:       rtcCfg,
			ReadLimit: cfg.ReadLimit,
		},
	}
}
