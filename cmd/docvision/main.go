package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/garagehq/docvision/pkg/api"
	"github.com/garagehq/docvision/pkg/cache"
	"github.com/garagehq/docvision/pkg/config"
	"github.com/garagehq/docvision/pkg/cost"
	"github.com/garagehq/docvision/pkg/extract"
	"github.com/garagehq/docvision/pkg/fingerprint"
	"github.com/garagehq/docvision/pkg/modelsel"
	"github.com/garagehq/docvision/pkg/pipeline"
	"github.com/garagehq/docvision/pkg/vision"
)

func main() {
	// 1. Load Config with hot reload
	cfgStore, err := config.LoadAndWatch()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgStore.Get()
	if cfg == nil {
		log.Fatal("Config could not be read")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Initialize Redis (if enabled)
	var rdb *cache.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Could not connect to Redis: %v", err)
		}
		fmt.Println("✅ Connected to Redis successfully!")
	}

	// 3. Fingerprint cache: Redis-backed when available, bounded in-memory otherwise
	var store fingerprint.Store
	if rdb != nil {
		store = fingerprint.NewRedisStore(rdb)
		fmt.Println("✅ Fingerprint cache backed by Redis")
	} else {
		store = fingerprint.NewMemoryStore(cfg.Cache.MaxEntries)
		fmt.Printf("✅ Fingerprint cache in-memory (max %d entries)\n", cfg.Cache.MaxEntries)
	}
	fpCache := fingerprint.NewCache(store, cfg.Cache.TTL, logger)

	// 4. Model selection from the configured tier table
	tiers, err := tierModels(cfg)
	if err != nil {
		log.Fatalf("Invalid models config: %v", err)
	}
	selector, err := modelsel.NewSelector(tiers)
	if err != nil {
		log.Fatalf("Invalid models config: %v", err)
	}

	// 5. Resilient invoker against the remote vision service
	caller := vision.NewOpenAICaller(cfg.Vision.APIKey, cfg.Vision.BaseURL)
	outbound := rate.NewLimiter(rate.Limit(cfg.Vision.CallsPerSecond), cfg.Vision.CallBurst)
	invoker := vision.NewInvoker(caller, outbound,
		cfg.Vision.RequestTimeout, cfg.Retry.BackoffBase, cfg.Retry.BackoffCap, logger)

	// 6. Extraction, cost accounting, orchestrator
	parser, err := extract.NewParser(cfg.Extraction.ConfidenceThreshold, logger)
	if err != nil {
		log.Fatalf("Failed to compile extraction schemas: %v", err)
	}
	totals := cost.NewSessionTotals()
	sink := cost.MultiSink{totals, cost.PromSink{}}
	pipe := pipeline.New(fpCache, selector, invoker, parser, cost.NewEstimator(cfg.Models), sink, logger)

	// 7. HTTP surface with layered middleware (order matters!)
	mux := http.NewServeMux()
	a := api.New(pipe, totals, logger)
	a.RegisterRoutes(mux)

	if cfg.Admin.Key != "" {
		api.NewAdminAPI(totals, cfg.Admin.Key).RegisterRoutes(mux)
		fmt.Println("✅ Admin API enabled at /admin/*")
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	handler = api.NewRateLimiter(rdb, cfgStore)(handler)
	if cfg.RateLimit.Enabled {
		fmt.Printf("✅ Rate limiting: %.1f req/s (burst: %d)\n",
			cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	handler = api.RequestLogger(handler)

	// 8. Start Server
	fmt.Println("\n🚀 docvision active:")
	fmt.Println("   - Extraction:      POST http://localhost" + cfg.Server.Port + "/v1/extract")
	fmt.Println("   - Metrics:         http://localhost" + cfg.Server.Port + "/metrics")
	fmt.Println("   - Health Check:    http://localhost" + cfg.Server.Port + "/health")
	fmt.Println("\n📊 Configuration can be hot-reloaded by editing configs/config.yaml")
	fmt.Printf("\n🎯 Server listening on %s\n", cfg.Server.Port)

	if err := http.ListenAndServe(cfg.Server.Port, handler); err != nil {
		log.Fatal("Server failed:", err)
	}
}

// tierModels inverts the per-model rate table into tier -> model identifier.
func tierModels(cfg *config.Config) (map[modelsel.Tier]string, error) {
	out := make(map[modelsel.Tier]string, 3)
	for model, rateCfg := range cfg.Models {
		var t modelsel.Tier
		switch rateCfg.Tier {
		case "fast":
			t = modelsel.TierFast
		case "standard":
			t = modelsel.TierStandard
		case "power":
			t = modelsel.TierPower
		default:
			return nil, fmt.Errorf("model %s has unknown tier %q", model, rateCfg.Tier)
		}
		if prev, dup := out[t]; dup {
			return nil, fmt.Errorf("tier %s assigned to both %s and %s", rateCfg.Tier, prev, model)
		}
		out[t] = model
	}
	return out, nil
}
