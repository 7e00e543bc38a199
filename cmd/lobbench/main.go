// lobbench runs the synthetic workload suite against the engine and
// reports per-scenario latency percentiles and throughput, optionally
// as CSV for plotting.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"fenrir/bench"
	"fenrir/domain/orderbook"
)

func main() {
	csvPath := flag.String("csv", "", "write results as CSV to this path")
	only := flag.String("scenario", "", "run only the named scenario")
	messages := flag.Int("messages", 0, "override the per-scenario message count")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	v := viper.New()
	v.SetEnvPrefix("fenrir")
	v.AutomaticEnv()
	v.SetDefault("pool_capacity", orderbook.DefaultConfig().PoolCapacity)

	cfg := orderbook.DefaultConfig()
	cfg.PoolCapacity = v.GetInt("pool_capacity")

	var results []*bench.Result
	for _, sc := range bench.Scenarios() {
		if *only != "" && sc.Name != *only {
			continue
		}
		if *messages > 0 {
			sc.Messages = *messages
		}
		res, err := bench.Run(sc, cfg)
		if err != nil {
			log.Fatal("scenario", zap.String("name", sc.Name), zap.Error(err))
		}
		fmt.Println(res.Report())
		results = append(results, res)
	}

	if len(results) == 0 {
		fmt.Fprintf(os.Stderr, "no scenario matched %q\n", *only)
		os.Exit(2)
	}

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatal("csv", zap.Error(err))
		}
		defer f.Close()
		if err := bench.WriteCSV(f, results); err != nil {
			log.Fatal("csv", zap.Error(err))
		}
		log.Info("results written", zap.String("path", *csvPath))
	}
}
