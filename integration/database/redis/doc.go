// Package redis provides the Redis client bootstrap and the Redis-backed
// session store.
//
// It wraps the go-redis client with connection validation, retry logic and
// health checking, and implements the core/backend Store contract on top of
// it, including the pipelined GET+EXPIRE used by read-heavy session
// configurations.
//
// # Configuration
//
// Configuration maps from environment variables; a .env file is loaded
// automatically when present:
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// Both redis:// and rediss:// (TLS) URL schemes are supported.
//
// # Usage
//
//	cfg, err := redis.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	store := redis.NewStore(client)
//	mgr, err := session.New(store, session.WithTimeout(30*time.Minute))
//
// # Health Checking
//
// Healthcheck returns a probe for readiness endpoints:
//
//	check := redis.Healthcheck(client)
//	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
//		if err := check(r.Context()); err != nil {
//			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
//			return
//		}
//		w.WriteHeader(http.StatusOK)
//	})
//
// # Error Handling
//
// The package defines stable error values checked with errors.Is():
// ErrEmptyConnectionURL, ErrFailedToParseRedisConnString, ErrRedisNotReady,
// ErrHealthcheckFailed and ErrInvalidConfig. Store operations return
// backend.ErrNotFound for absent keys and pass other client errors through
// unchanged.
package redis
