package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/maps-harvest/internal/autoseq"
	"github.com/sells-group/maps-harvest/internal/browser"
	"github.com/sells-group/maps-harvest/internal/enrich"
	"github.com/sells-group/maps-harvest/internal/extract"
	"github.com/sells-group/maps-harvest/internal/fetcher"
	"github.com/sells-group/maps-harvest/internal/records"
	"github.com/sells-group/maps-harvest/internal/resilience"
	"github.com/sells-group/maps-harvest/internal/store"
)

// harvestEnv holds the store-backed state every command works on, plus the
// optional browser and enrichment collaborators.
type harvestEnv struct {
	KV       store.KV
	Records  *records.Store
	Failures *resilience.FailureLog
	Enricher *enrich.Coordinator // nil until withEnricher
	Chrome   *browser.ChromeChannel
}

// Close releases the browser and the store.
func (e *harvestEnv) Close() {
	if e.Chrome != nil {
		_ = e.Chrome.Close()
	}
	if e.KV != nil {
		_ = e.KV.Close()
	}
}

func initStore(ctx context.Context) (store.KV, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "harvest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates the config for mode, opens and migrates the store and
// loads the records. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*harvestEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	kv, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := kv.Migrate(ctx); err != nil {
		_ = kv.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	recs, err := records.Load(ctx, kv)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	return &harvestEnv{
		KV:       kv,
		Records:  recs,
		Failures: resilience.NewFailureLog(kv),
	}, nil
}

// withEnricher builds the enrichment coordinator from config.
func (e *harvestEnv) withEnricher() *enrich.Coordinator {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Enrich.UserAgent,
		Timeout:      cfg.Enrich.Timeout(),
		MaxBodyBytes: cfg.Enrich.MaxBodyBytes,
	})

	opts := []enrich.Option{
		enrich.WithFailureLog(e.Failures),
		enrich.WithConcurrency(cfg.Enrich.Concurrency),
	}
	if cfg.Enrich.VerifyMX {
		resolver := enrich.NewDNSResolver(cfg.Enrich.DNSServers, 5*time.Second)
		opts = append(opts, enrich.WithMXFilter(enrich.NewMXFilter(resolver)))
		zap.L().Info("mx verification enabled", zap.Strings("dns_servers", cfg.Enrich.DNSServers))
	}

	e.Enricher = enrich.New(f, e.Records, opts...)
	return e.Enricher
}

// initExtractor builds the field extractor from config.
func initExtractor() (*extract.Extractor, error) {
	policy, err := extract.ParsePhonePolicy(cfg.Extract.PhonePolicy)
	if err != nil {
		return nil, err
	}
	opts := []extract.Option{extract.WithPhonePolicy(policy)}
	if cfg.Extract.SelectorsFile != "" {
		sel, err := extract.LoadSelectors(cfg.Extract.SelectorsFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, extract.WithSelectors(sel))
	}
	return extract.New(opts...), nil
}

// withChrome launches the controlled browser.
func (e *harvestEnv) withChrome(ctx context.Context) (*browser.Client, error) {
	ex, err := initExtractor()
	if err != nil {
		return nil, err
	}
	ch, err := browser.NewChrome(ctx, browser.ChromeOptions{
		Headless:    cfg.Browser.Headless,
		UserAgent:   cfg.Browser.UserAgent,
		ExecPath:    cfg.Browser.ExecPath,
		StartURL:    cfg.Browser.StartURL,
		CallTimeout: time.Duration(cfg.Browser.TimeoutSecs) * time.Second,
		MaxScrolls:  cfg.Browser.MaxScrolls,
	}, ex)
	if err != nil {
		return nil, err
	}
	e.Chrome = ch
	return browser.NewClient(ch), nil
}

// autoTiming converts the configured delays.
func autoTiming() autoseq.Timing {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return autoseq.Timing{
		PollInterval: ms(cfg.AutoSeq.PollIntervalMs),
		MaxPolls:     cfg.AutoSeq.MaxPolls,
		Settle:       ms(cfg.AutoSeq.SettleMs),
		InterItem:    ms(cfg.AutoSeq.InterItemMs),
	}
}
