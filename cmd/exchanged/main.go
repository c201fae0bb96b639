package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/economy/pricing"
	"aisociety.ai/internal/economy/resource"
	"aisociety.ai/internal/economy/tuning"
	"aisociety.ai/internal/persistence/journal"
	"aisociety.ai/internal/persistence/ledgerdb"
	"aisociety.ai/internal/transport/feed"
)

func main() {
	var (
		addr       = flag.String("addr", "", "feed listen address (default: from config)")
		configPath = flag.String("config", "./configs/economy.yaml", "economy config path")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite trade ledger")
		demo       = flag.Bool("demo", false, "drive a demo economy that generates market activity")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[exchanged] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Printf("config not found (%s); using defaults", *configPath)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load config: %v", err)
		}
	}

	listenAddr := strings.TrimSpace(*addr)
	if listenAddr == "" {
		listenAddr = tune.Feed.Addr
	}

	strategy, err := buildStrategy(tune.Pricing)
	if err != nil {
		logger.Fatalf("pricing: %v", err)
	}

	mkt := market.New(market.Config{
		OfferDuration:    time.Duration(tune.Market.OfferDurationS) * time.Second,
		MinOfferQuantity: tune.Market.MinOfferQuantity,
		MaxActiveOffers:  tune.Market.MaxActiveOffers,
		TrackPrices:      tune.Market.TrackPrices,
		FeeRate:          tune.Market.FeeRate,
	}, strategy, nil)
	if len(tune.BasePrices) > 0 {
		prices := make(map[resource.Kind]float64, len(tune.BasePrices))
		for k, v := range tune.BasePrices {
			prices[resource.Kind(k)] = v
		}
		mkt.SetBasePrices(prices)
	}

	mj := journal.NewMarketJournal(filepath.Join(*dataDir, tune.Journal.Dir), tune.Journal.Compress)
	defer func() { _ = mj.Close() }()
	mkt.AttachObserver(mj)

	var ledger *ledgerdb.Ledger
	if !*disableDB {
		ledger, err = ledgerdb.Open(filepath.Join(*dataDir, tune.Ledger.Path), tune.Ledger.QueueSize)
		if err != nil {
			logger.Fatalf("open ledger: %v", err)
		}
		defer func() { _ = ledger.Close() }()
		mkt.AttachObserver(ledger)
	} else {
		logger.Printf("trade ledger disabled")
	}

	feedSrv := feed.NewServer(mkt, logger)
	mkt.AttachObserver(feedSrv)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(mkt, feedSrv, ledger, mj))
	mux.HandleFunc("/v1/feed", feedSrv.Handler())

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if tune.Market.CleanupEveryS > 0 {
		eg.Go(func() error {
			t := time.NewTicker(time.Duration(tune.Market.CleanupEveryS) * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-t.C:
					if n := mkt.CleanupExpired(); n > 0 {
						logger.Printf("swept %d expired offers", n)
					}
				}
			}
		})
	}
	if *demo {
		eg.Go(func() error {
			runDemo(ctx, mkt, ledger, tune.Capacity, logger)
			return nil
		})
	}
	eg.Go(func() error {
		logger.Printf("market feed listening on %s (strategy=%s)", listenAddr, strategy.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Fatalf("exchanged: %v", err)
	}
}

func buildStrategy(p tuning.Pricing) (pricing.Strategy, error) {
	vol, err := pricing.ParseVolatility(p.Volatility)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(p.Strategy)) {
	case "", "supply_demand":
		return pricing.NewSupplyDemandPricing(vol), nil
	case "fixed":
		return pricing.NewFixedPricing(), nil
	case "relationship":
		return pricing.NewRelationshipPricing(pricing.NewSupplyDemandPricing(vol)), nil
	default:
		return nil, fmt.Errorf("unknown pricing strategy %q", p.Strategy)
	}
}

func metricsHandler(mkt *market.Marketplace, feedSrv *feed.Server, ledger *ledgerdb.Ledger, mj *journal.MarketJournal) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		st := mkt.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP exchanged_market_active_offers Currently active offers.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_active_offers gauge\n")
		fmt.Fprintf(rw, "exchanged_market_active_offers %d\n", st.ActiveOffers)

		fmt.Fprintf(rw, "# HELP exchanged_market_trades_total Completed trades.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_trades_total counter\n")
		fmt.Fprintf(rw, "exchanged_market_trades_total %d\n", st.TotalTrades)

		fmt.Fprintf(rw, "# HELP exchanged_market_volume_total Units settled across all trades.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_volume_total counter\n")
		fmt.Fprintf(rw, "exchanged_market_volume_total %.3f\n", st.TotalVolume)

		fmt.Fprintf(rw, "# HELP exchanged_market_fees_total Fees collected across all trades.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_fees_total counter\n")
		fmt.Fprintf(rw, "exchanged_market_fees_total %.3f\n", st.TotalFees)

		byKind := mkt.StatsByKind()
		fmt.Fprintf(rw, "# HELP exchanged_market_supply Units listed for sale, by kind.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_supply gauge\n")
		for _, ks := range byKind {
			fmt.Fprintf(rw, "exchanged_market_supply{kind=%q} %.3f\n", ks.Kind, ks.Supply)
		}
		fmt.Fprintf(rw, "# HELP exchanged_market_demand Recorded buying interest, by kind.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_demand gauge\n")
		for _, ks := range byKind {
			fmt.Fprintf(rw, "exchanged_market_demand{kind=%q} %.3f\n", ks.Kind, ks.Demand)
		}
		fmt.Fprintf(rw, "# HELP exchanged_market_price Current strategy price, by kind.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_market_price gauge\n")
		for _, ks := range byKind {
			fmt.Fprintf(rw, "exchanged_market_price{kind=%q} %.3f\n", ks.Kind, ks.Price)
		}

		fmt.Fprintf(rw, "# HELP exchanged_feed_subscribers Connected feed subscribers.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_feed_subscribers gauge\n")
		fmt.Fprintf(rw, "exchanged_feed_subscribers %d\n", feedSrv.SubscriberCount())

		fmt.Fprintf(rw, "# HELP exchanged_feed_slow_drops_total Subscribers dropped for reading too slowly.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_feed_slow_drops_total counter\n")
		fmt.Fprintf(rw, "exchanged_feed_slow_drops_total %d\n", feedSrv.SlowReaderDrops())

		fmt.Fprintf(rw, "# HELP exchanged_journal_write_errors_total Journal entries lost to write failures.\n")
		fmt.Fprintf(rw, "# TYPE exchanged_journal_write_errors_total counter\n")
		fmt.Fprintf(rw, "exchanged_journal_write_errors_total %d\n", mj.WriteErrors())

		if ledger != nil {
			ls := ledger.Stats()
			fmt.Fprintf(rw, "# HELP exchanged_ledger_queue_depth Ledger write queue backlog.\n")
			fmt.Fprintf(rw, "# TYPE exchanged_ledger_queue_depth gauge\n")
			fmt.Fprintf(rw, "exchanged_ledger_queue_depth %d\n", ls.QueueDepth)

			fmt.Fprintf(rw, "# HELP exchanged_ledger_queue_capacity Ledger write queue capacity.\n")
			fmt.Fprintf(rw, "# TYPE exchanged_ledger_queue_capacity gauge\n")
			fmt.Fprintf(rw, "exchanged_ledger_queue_capacity %d\n", ls.QueueCapacity)

			fmt.Fprintf(rw, "# HELP exchanged_ledger_dropped_total Ledger rows dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE exchanged_ledger_dropped_total counter\n")
			fmt.Fprintf(rw, "exchanged_ledger_dropped_total{row=%q} %d\n", "trade", ls.DropTradeTotal)
			fmt.Fprintf(rw, "exchanged_ledger_dropped_total{row=%q} %d\n", "offer_event", ls.DropOfferEventTotal)
			fmt.Fprintf(rw, "exchanged_ledger_dropped_total{row=%q} %d\n", "transaction", ls.DropTransactionTotal)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
