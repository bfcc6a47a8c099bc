package httputil

import (
	"time"

	"github.com/go-resty/resty/v2"

	"apt_scrooper/config"
)

type Clients struct {
	Probe *resty.Client // HEAD liveness checks, short timeout, no retries
	Fetch *resty.Client // static page fetches for index and platform sniffing
}

func NewClients(cfg config.ScraperConfig) *Clients {
	probe := resty.New().
		SetTimeout(cfg.ProbeTimeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", cfg.UserAgent)

	fetch := resty.New().
		SetTimeout(cfg.NavTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8").
		SetHeader("Accept-Language", "en-US,en;q=0.9")

	if cfg.ProxyURL != "" {
		probe.SetProxy(cfg.ProxyURL)
		fetch.SetProxy(cfg.ProxyURL)
	}

	return &Clients{
		Probe: probe,
		Fetch: fetch,
	}
}
