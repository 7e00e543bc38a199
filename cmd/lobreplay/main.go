// lobreplay rebuilds an engine from a recorded session and prints the
// resulting book. The session comes from a binary journal file or,
// with -from-kafka, from the canonical-record topic. It can also
// re-save the journal (round-trip check) or publish the records to
// Kafka for downstream consumers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fenrir/domain/orderbook"
	"fenrir/infra/stream"
	"fenrir/service"
)

type config struct {
	Brokers     []string
	OrdersTopic string
	Group       string
}

func loadConfig() config {
	v := viper.New()
	v.SetEnvPrefix("fenrir")
	v.AutomaticEnv()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // optional

	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("orders_topic", "orders")
	v.SetDefault("consumer_group", "")

	return config{
		Brokers:     v.GetStringSlice("kafka_brokers"),
		OrdersTopic: v.GetString("orders_topic"),
		Group:       v.GetString("consumer_group"),
	}
}

func main() {
	journalPath := flag.String("journal", "", "binary journal to replay")
	fromKafka := flag.Bool("from-kafka", false, "consume records from the orders topic instead of a file")
	maxMsgs := flag.Int("count", 0, "with -from-kafka, stop after this many records (0 = until idle)")
	depth := flag.Int("depth", 10, "depth levels to print per side")
	resave := flag.String("resave", "", "re-save the replayed journal to this path")
	publish := flag.Bool("publish", false, "publish the canonical records to the orders topic")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *journalPath == "" && !*fromKafka {
		fmt.Fprintln(os.Stderr, "usage: lobreplay -journal <path> | -from-kafka [-count N] [-depth N] [-resave <path>] [-publish]")
		os.Exit(2)
	}

	cfg := loadConfig()
	eng, err := service.NewEngine(orderbook.DefaultConfig())
	if err != nil {
		log.Fatal("engine", zap.Error(err))
	}

	if *fromKafka {
		if err := consumeFromKafka(eng, cfg, *maxMsgs, log); err != nil {
			log.Fatal("kafka replay", zap.Error(err))
		}
	} else {
		if err := eng.LoadAndReplay(*journalPath); err != nil {
			log.Fatal("journal replay", zap.String("path", *journalPath), zap.Error(err))
		}
		log.Info("journal replayed",
			zap.String("path", *journalPath),
			zap.Int("messages", len(eng.History())))
	}

	printSummary(eng, *depth)

	if *resave != "" {
		if err := eng.Save(*resave); err != nil {
			log.Fatal("resave", zap.Error(err))
		}
		log.Info("journal re-saved", zap.String("path", *resave))
	}

	if *publish {
		sink := stream.NewSink(cfg.Brokers, cfg.OrdersTopic)
		defer sink.Close()
		if err := sink.Publish(context.Background(), eng.History()...); err != nil {
			log.Fatal("publish", zap.Error(err))
		}
		log.Info("records published",
			zap.String("topic", cfg.OrdersTopic),
			zap.Int("count", len(eng.History())))
	}
}

// consumeFromKafka applies records from the topic until count is
// reached or the topic goes idle for a few seconds.
func consumeFromKafka(eng *service.Engine, cfg config, count int, log *zap.Logger) error {
	src := stream.NewSource(cfg.Brokers, cfg.OrdersTopic, cfg.Group)
	defer src.Close()

	applied := 0
	for count == 0 || applied < count {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		msg, err := src.Next(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if err != nil {
			return err
		}
		eng.Process(msg)
		applied++
	}
	log.Info("topic replayed", zap.String("topic", cfg.OrdersTopic), zap.Int("messages", applied))
	return nil
}

func printSummary(eng *service.Engine, depth int) {
	b := eng.Book()

	fmt.Println("── book summary ──────────────────────────────")
	if bb := b.BestBid(); bb == 0 {
		fmt.Println("best bid   : none")
	} else {
		fmt.Printf("best bid   : %d x %d\n", bb, b.BestBidQty())
	}
	if ba := b.BestAsk(); ba == ^orderbook.Price(0) {
		fmt.Println("best ask   : none")
	} else {
		fmt.Printf("best ask   : %d x %d\n", ba, b.BestAskQty())
	}
	fmt.Printf("crossed    : %v\n", b.IsCrossed())
	fmt.Printf("resting    : %d orders\n", b.OrderCount())
	fmt.Printf("processed  : %d orders, %d trades, %d volume\n",
		b.OrdersProcessed(), b.TradesExecuted(), b.VolumeTraded())
	fmt.Printf("engine     : %d messages in %v\n",
		eng.MessagesProcessed(), eng.ProcessingTime())

	bids, asks := b.MarketDepth(depth)
	fmt.Printf("── depth (top %d) ────────────────────────────\n", depth)
	fmt.Println("        bid qty    bid |    ask    ask qty")
	for i := 0; i < len(bids) || i < len(asks); i++ {
		bidCol, askCol := "                      ", ""
		if i < len(bids) {
			bidCol = fmt.Sprintf("%11d %10d", bids[i].Qty, bids[i].Price)
		}
		if i < len(asks) {
			askCol = fmt.Sprintf("%7d %10d", asks[i].Price, asks[i].Qty)
		}
		fmt.Printf("%s | %s\n", bidCol, askCol)
	}

	if err := b.Validate(); err != nil {
		fmt.Printf("VALIDATION FAILED: %v\n", err)
	}
}
