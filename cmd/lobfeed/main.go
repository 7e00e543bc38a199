// lobfeed streams a NASDAQ ITCH 5.0 tape through the engine for one
// symbol. It reports parse and apply statistics, can write the
// canonicalized flow as a binary journal, and with -publish wires the
// trade callback through the durable outbox to the Kafka broadcaster.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fenrir/domain/orderbook"
	"fenrir/feed/itch"
	"fenrir/infra/outbox"
	"fenrir/infra/sequence"
	"fenrir/jobs/broadcaster"
	"fenrir/service"
)

type config struct {
	Brokers     []string
	TradesTopic string
	OutboxDir   string
}

func loadConfig() config {
	v := viper.New()
	v.SetEnvPrefix("fenrir")
	v.AutomaticEnv()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // optional

	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("trades_topic", "trades")
	v.SetDefault("outbox_dir", "./outbox")

	return config{
		Brokers:     v.GetStringSlice("kafka_brokers"),
		TradesTopic: v.GetString("trades_topic"),
		OutboxDir:   v.GetString("outbox_dir"),
	}
}

func main() {
	tapePath := flag.String("tape", "", "ITCH 5.0 tape file")
	symbol := flag.String("symbol", "", "symbol to extract")
	journalOut := flag.String("journal", "", "write the canonical message stream to this journal")
	publish := flag.Bool("publish", false, "publish trades through the outbox to Kafka")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *tapePath == "" || *symbol == "" {
		fmt.Fprintln(os.Stderr, "usage: lobfeed -tape <path> -symbol <SYM> [-journal <path>] [-publish]")
		os.Exit(2)
	}

	cfg := loadConfig()
	eng, err := service.NewEngine(orderbook.DefaultConfig())
	if err != nil {
		log.Fatal("engine", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *publish {
		cleanup, err := wireEgress(ctx, eng, cfg, log)
		if err != nil {
			log.Fatal("egress", zap.Error(err))
		}
		defer cleanup()
	}

	f, err := os.Open(*tapePath)
	if err != nil {
		log.Fatal("open tape", zap.Error(err))
	}
	defer f.Close()

	adapter := itch.NewAdapter(itch.NewParser(f), *symbol)
	start := time.Now()
	applied := 0
	err = adapter.Drain(func(m orderbook.Message) error {
		if eng.Process(m) {
			applied++
		}
		return ctx.Err()
	})
	if err != nil {
		log.Fatal("tape", zap.Error(err))
	}
	elapsed := time.Since(start)

	st := adapter.Stats()
	b := eng.Book()
	fmt.Printf("symbol %s: %d adds, %d cancels, %d modifies canonicalized; %d skipped\n",
		*symbol, st.Adds, st.Cancels, st.Modifies, st.Skipped)
	fmt.Printf("applied %d of %d messages in %v (%.0f msg/s)\n",
		applied, eng.MessagesProcessed(), elapsed,
		float64(eng.MessagesProcessed())/elapsed.Seconds())
	fmt.Printf("off-book prints: %d, VWAP $%s\n", st.Trades, st.VWAP().StringFixed(4))
	fmt.Printf("book: best bid %d, best ask %d, %d resting, %d trades, %d volume\n",
		b.BestBid(), b.BestAsk(), b.OrderCount(), b.TradesExecuted(), b.VolumeTraded())

	if *journalOut != "" {
		if err := eng.Save(*journalOut); err != nil {
			log.Fatal("journal", zap.Error(err))
		}
		log.Info("journal written",
			zap.String("path", *journalOut),
			zap.Int("messages", len(eng.History())))
	}
}

// wireEgress routes engine fills into the outbox and starts the
// broadcaster that drains it to Kafka.
func wireEgress(ctx context.Context, eng *service.Engine, cfg config, log *zap.Logger) (func(), error) {
	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		return nil, err
	}

	seq := sequence.New(0)
	eng.OnTrade(func(t *orderbook.Trade) {
		if err := ob.Put(seq.Next(), *t); err != nil {
			log.Error("outbox put", zap.Error(err))
		}
	})

	bc, err := broadcaster.New(ob, cfg.Brokers, cfg.TradesTopic, log)
	if err != nil {
		ob.Close()
		return nil, err
	}
	go bc.Run(ctx)

	return func() {
		// Let the broadcaster finish the final sweep before closing.
		time.Sleep(2 * broadcaster.DefaultInterval)
		bc.Close()
		ob.Close()
	}, nil
}
