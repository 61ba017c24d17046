// Command authcore-loadtest drives signup, login, access validation and
// refresh through an Engine backed by redisstore and reports latency
// percentiles per phase.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "load-test-password-1"

type accountState struct {
	email   string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		accounts    = flag.Int("accounts", 1000, "number of accounts to sign up")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per validate and refresh phase")
		logins      = flag.Int("logins", 2000, "operations in the login phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "authcore-load", "redis key prefix")
		rotate      = flag.Bool("rotate", false, "rotate refresh tokens on every refresh")
		argonMemory = flag.Uint("argon-memory", 8192, "argon2id memory in KiB")
		argonTime   = flag.Uint("argon-time", 1, "argon2id iterations")
		showMetrics = flag.Bool("metrics", false, "print engine metrics after the run")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, ops and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	client, cleanup, err := openRedis(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, err := buildEngine(client, *prefix, *rotate, uint32(*argonMemory), uint32(*argonTime))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]accountState, *accounts)
	run := fmt.Sprintf("%d", time.Now().UnixNano())

	signupStats := runPhase(*accounts, *concurrency, func(_ *mrand.Rand, i int) error {
		email := fmt.Sprintf("load-%s-%d@example.test", run, i)
		res, err := engine.Signup(ctx, email, fmt.Sprintf("load %s %d", run, i), loadPassword)
		if err != nil {
			return err
		}
		states[i] = accountState{email: email, access: res.Tokens.AccessToken, refresh: res.Tokens.RefreshToken}
		return nil
	})

	loginStats := runPhase(*logins, *concurrency, func(r *mrand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		res, err := engine.Login(ctx, st.email, loadPassword)
		if err != nil {
			return err
		}
		st.access, st.refresh = res.Tokens.AccessToken, res.Tokens.RefreshToken
		return nil
	})

	validateStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		token := st.access
		st.mu.Unlock()
		_, err := engine.ValidateAccess(ctx, token)
		return err
	})

	refreshStats := runPhase(*ops, *concurrency, func(r *mrand.Rand, _ int) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		res, err := engine.RefreshToken(ctx, st.refresh)
		if err != nil {
			return err
		}
		st.access = res.AccessToken
		if res.RefreshToken != "" {
			st.refresh = res.RefreshToken
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("signup", signupStats)
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	if *showMetrics {
		fmt.Println("---- metrics ----")
		fmt.Print(prometheus.New(engine).Render())
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient, prefix string, rotate bool, memory, iterations uint32) (*authcore.Engine, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = secret
	cfg.JWT.RotateRefreshOnUse = rotate
	cfg.Password.Memory = memory
	cfg.Password.Time = iterations
	cfg.Password.Parallelism = 1
	cfg.Security.RedisPrefix = prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer, err := notify.NewMailer(notify.NewLogSender(quiet), notify.MailerConfig{
		AppName:  "authcore-loadtest",
		OTPTTL:   cfg.OTP.TTL,
		ResetTTL: cfg.OTP.ResetTTL,
	})
	if err != nil {
		return nil, err
	}

	return authcore.New().
		WithConfig(cfg).
		WithAccountStore(redisstore.New(client, redisstore.Config{Prefix: prefix})).
		WithNotifier(mailer).
		WithRedis(client).
		WithLogger(quiet).
		Build()
}

// runPhase runs fn ops times across concurrency workers. Each worker owns
// its random source.
func runPhase(ops, concurrency int, fn func(r *mrand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := fn(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-8s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
