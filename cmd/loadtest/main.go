// Command loadtest drives many concurrent agents against a server: each
// registers, logs in, then chats with its peers and browses the catalog.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aeolun/auboutique/pkg/client"
	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const password = "loadtest-pass"

// Stats tracks performance metrics
type Stats struct {
	chatsSent         atomic.Int64
	chatsReceived     atomic.Int64
	browses           atomic.Int64
	listings          atomic.Int64
	recipientsOffline atomic.Int64
	failures          atomic.Int64
	timeouts          atomic.Int64
	totalResponseTime atomic.Int64 // in microseconds
	responses         atomic.Int64
	connectionErrors  atomic.Int64
	successfulClients atomic.Int64
}

func (s *Stats) recordResponse(d time.Duration) {
	s.responses.Add(1)
	s.totalResponseTime.Add(d.Microseconds())
}

// recordError classifies a failed call. Offline recipients are expected
// while peers ramp up and are not failures.
func (s *Stats) recordError(err error) {
	switch {
	case errors.Is(err, protocol.ErrRecipientOffline):
		s.recipientsOffline.Add(1)
	case errors.Is(err, protocol.ErrNoResponse):
		s.timeouts.Add(1)
		s.failures.Add(1)
	default:
		s.failures.Add(1)
	}
}

func (s *Stats) avgResponseMs() float64 {
	n := s.responses.Load()
	if n == 0 {
		return 0
	}
	return float64(s.totalResponseTime.Load()) / float64(n) / 1000.0
}

// options are the command-line settings
type options struct {
	server   string
	clients  int
	duration time.Duration
	minDelay time.Duration
	maxDelay time.Duration
}

// botClient is one simulated shopper
type botClient struct {
	id       int
	username string
	agent    *client.Agent
	stats    *Stats
	rng      *rand.Rand
}

func newBotClient(id int, runID string, server string, stats *Stats, logger *log.Logger) (*botClient, error) {
	agent, err := client.NewAgent(server, client.DefaultConfig())
	if err != nil {
		return nil, err
	}
	agent.SetLogger(logger)
	return &botClient{
		id:       id,
		username: botName(runID, id),
		agent:    agent,
		stats:    stats,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}, nil
}

func botName(runID string, id int) string {
	return fmt.Sprintf("lt%s%d", runID, id)
}

// setup connects, registers and logs in
func (b *botClient) setup(ctx context.Context) error {
	if err := b.agent.Connect(ctx); err != nil {
		return err
	}
	email := b.username + "@loadtest.invalid"
	if _, err := b.agent.Register(ctx, b.username, password, "Load Test "+b.username, email); err != nil &&
		!errors.Is(err, protocol.ErrUsernameTaken) {
		return fmt.Errorf("register: %w", err)
	}
	if _, err := b.agent.Login(ctx, b.username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// run performs random actions until ctx is done
func (b *botClient) run(ctx context.Context, peers []string, opts options) {
	defer b.agent.Close()

	for {
		delay := opts.minDelay
		if span := opts.maxDelay - opts.minDelay; span > 0 {
			delay += time.Duration(b.rng.Int63n(int64(span)))
		}
		select {
		case <-ctx.Done():
			logoutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_, _ = b.agent.Logout(logoutCtx)
			cancel()
			return
		case <-time.After(delay):
		}

		b.stats.chatsReceived.Add(int64(len(b.agent.Pushes().Drain())))

		start := time.Now()
		var err error
		switch roll := b.rng.Intn(10); {
		case roll < 6:
			to := lo.Sample(peers)
			if to == b.username {
				continue
			}
			_, err = b.agent.SendChat(ctx, b.username, to, fmt.Sprintf("hello from %s at %s", b.username, start.Format(time.TimeOnly)))
			if err == nil {
				b.stats.chatsSent.Add(1)
			}
		case roll < 9:
			if b.rng.Intn(2) == 0 {
				_, err = b.agent.ListProducts(ctx)
			} else {
				_, err = b.agent.SearchProducts(ctx, "item", "")
			}
			if err == nil {
				b.stats.browses.Add(1)
			}
		default:
			price := float64(1+b.rng.Intn(9999)) / 100
			_, err = b.agent.AddProduct(ctx, b.username, fmt.Sprintf("item-%d", b.rng.Intn(1000)), price, "load test listing", "loadtest", nil)
			if err == nil {
				b.stats.listings.Add(1)
			}
		}

		if ctx.Err() != nil {
			continue
		}
		if err != nil {
			b.stats.recordError(err)
			continue
		}
		b.stats.recordResponse(time.Since(start))
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "loadtest",
		Short:        "Generate chat and catalog load against a server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.clients < 2 {
				return fmt.Errorf("need at least 2 clients, got %d", opts.clients)
			}
			if opts.maxDelay < opts.minDelay {
				return fmt.Errorf("max-delay %v is below min-delay %v", opts.maxDelay, opts.minDelay)
			}
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "localhost:5555", "Server address (host:port or ws://host:port/ws)")
	cmd.Flags().IntVar(&opts.clients, "clients", 10, "Number of concurrent clients")
	cmd.Flags().DurationVar(&opts.duration, "duration", time.Minute, "Test duration")
	cmd.Flags().DurationVar(&opts.minDelay, "min-delay", 100*time.Millisecond, "Minimum delay between actions")
	cmd.Flags().DurationVar(&opts.maxDelay, "max-delay", time.Second, "Maximum delay between actions")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	debugFile, err := os.OpenFile("loadtest_debug.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("failed to create loadtest_debug.log: %w", err)
	}
	defer debugFile.Close()
	debugLogger := log.New(debugFile, "", log.LstdFlags|log.Lmicroseconds)

	runID := uuid.NewString()[:8]
	peers := make([]string, opts.clients)
	for i := range peers {
		peers[i] = botName(runID, i)
	}

	// Ramp up over 25% of the test duration
	staggerDelay := max(opts.duration/4/time.Duration(opts.clients), time.Millisecond)

	log.Printf("Starting load test:")
	log.Printf("  Server: %s", opts.server)
	log.Printf("  Clients: %d (run %s)", opts.clients, runID)
	log.Printf("  Duration: %v", opts.duration)
	log.Printf("  Delay: %v - %v", opts.minDelay, opts.maxDelay)

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Printf("Shutdown signal received, stopping test...")
			cancel()
		case <-ctx.Done():
		}
	}()

	stats := &Stats{}
	startTime := time.Now()
	go reportStats(ctx, stats, startTime)

	var wg sync.WaitGroup
	for i := 0; i < opts.clients && ctx.Err() == nil; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			bot, err := newBotClient(id, runID, opts.server, stats, debugLogger)
			if err != nil {
				stats.connectionErrors.Add(1)
				return
			}
			if err := bot.setup(ctx); err != nil {
				debugLogger.Printf("[Bot %d] setup failed: %v", id, err)
				stats.connectionErrors.Add(1)
				bot.agent.Close()
				return
			}
			stats.successfulClients.Add(1)
			bot.run(ctx, peers, opts)
		}(i)
		time.Sleep(staggerDelay)
	}
	wg.Wait()

	elapsed := time.Since(startTime)
	sent := stats.chatsSent.Load()
	log.Printf("=== Final Results ===")
	log.Printf("Clients: %d attempted, %d successful", opts.clients, stats.successfulClients.Load())
	log.Printf("Duration: %v", elapsed.Round(time.Millisecond))
	log.Printf("Chats sent: %d (%.1f/s), received: %d", sent, float64(sent)/elapsed.Seconds(), stats.chatsReceived.Load())
	log.Printf("Catalog browses: %d, listings added: %d", stats.browses.Load(), stats.listings.Load())
	log.Printf("Recipient offline: %d", stats.recipientsOffline.Load())
	log.Printf("Failures: %d (timeouts %d)", stats.failures.Load(), stats.timeouts.Load())
	log.Printf("Connection errors: %d", stats.connectionErrors.Load())
	log.Printf("Average response time: %.2fms", stats.avgResponseMs())
	return nil
}

func reportStats(ctx context.Context, stats *Stats, startTime time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(startTime).Seconds()
			sent := stats.chatsSent.Load()
			log.Printf("Stats: %d chats (%.1f/s), %d browses, %d failed, avg %.2fms, goroutines %d",
				sent, float64(sent)/elapsed, stats.browses.Load(), stats.failures.Load(),
				stats.avgResponseMs(), runtime.NumGoroutine())
		case <-ctx.Done():
			return
		}
	}
}
