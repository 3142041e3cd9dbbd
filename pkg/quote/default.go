package quote

// DefaultConfig selects the providers of NewDefaultRegistry.
type DefaultConfig struct {
	Options
	// HTTPClient is shared by all providers; nil uses a client with
	// DefaultHTTPTimeout.
	HTTPClient HTTPDoer
	// EODHDAPIKey enables the eodhd provider when set.
	EODHDAPIKey string
}

// NewDefaultRegistry returns a registry with every built-in provider.
func NewDefaultRegistry(cfg DefaultConfig) *Registry {
	client := defaultClient(cfg.HTTPClient)
	r := NewRegistry(cfg.Options)
	r.Register(NewYahoo(client))
	r.Register(NewSina(client))
	r.Register(NewTencent(client))
	r.Register(NewEastmoney(client))
	r.Register(NewBloomberg(client))
	if cfg.EODHDAPIKey != "" {
		r.Register(NewEODHD(client, cfg.EODHDAPIKey, 0))
	}
	return r
}
