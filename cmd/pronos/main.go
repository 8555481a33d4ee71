package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pronos-app/pronos/internal/logger"
	"github.com/pronos-app/pronos/pkg/pronos"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "train":
		runTrain(os.Args[2:])
	case "predict":
		runPredict(os.Args[2:])
	case "sync":
		runSync(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pronos <train|predict|sync> [flags]")
	fmt.Fprintln(os.Stderr, "  train    fit the goal models from stored results")
	fmt.Fprintln(os.Stderr, "  predict  score upcoming fixtures with the trained models")
	fmt.Fprintln(os.Stderr, "  sync     refresh the database from external sources")
}

// fatal emits a structured error payload on stderr and exits non-zero
func fatal(err error) {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	fmt.Fprintln(os.Stderr, string(payload))
	os.Exit(1)
}

// emit writes the machine readable result document to stdout
func emit(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(fmt.Errorf("failed to marshal output: %w", err))
	}
	fmt.Println(string(data))
}

func commonFlags(fs *flag.FlagSet, cfg *pronos.Config) *bool {
	fs.StringVar(&cfg.DbPath, "db", cfg.DbPath, "path to the sqlite database")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "path to the model bundle")
	return fs.Bool("v", false, "verbose logging")
}

// newEngine loads the weather and congestion context and builds the
// feature engine over it
func newEngine(cfg *pronos.Config, store *pronos.Store) (*pronos.FeatureEngine, error) {
	weather, err := store.AllWeather()
	if err != nil {
		return nil, err
	}
	congestion, err := store.AllCongestion()
	if err != nil {
		return nil, err
	}
	return pronos.NewFeatureEngine(cfg, weather, congestion)
}

func runTrain(args []string) {
	cfg := pronos.DefaultConfig()
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	verbose := commonFlags(fs, cfg)
	fs.Parse(args)

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	store, err := pronos.OpenStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	historical, err := store.HistoricalMatches()
	if err != nil {
		fatal(err)
	}

	engine, err := newEngine(cfg, store)
	if err != nil {
		fatal(err)
	}

	pipeline, err := pronos.NewTrainingPipeline(cfg, engine)
	if err != nil {
		fatal(err)
	}

	bundle, err := pipeline.Train(historical)
	if err != nil {
		fatal(err)
	}

	emit(map[string]any{
		"modelId":         bundle.ID,
		"trainedAt":       bundle.TrainedAt,
		"metrics":         bundle.Metrics,
		"homeImportances": bundle.HomeImportances,
		"awayImportances": bundle.AwayImportances,
	})
}

func runPredict(args []string) {
	cfg := pronos.DefaultConfig()
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	verbose := commonFlags(fs, cfg)
	noStore := fs.Bool("no-store", false, "do not persist predictions")
	fs.Parse(args)

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	store, err := pronos.OpenStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	bundle, err := pronos.LoadBundle(cfg.ModelPath)
	if err != nil {
		fatal(err)
	}

	historical, err := store.HistoricalMatches()
	if err != nil {
		fatal(err)
	}
	upcoming, err := store.UpcomingMatches()
	if err != nil {
		fatal(err)
	}

	engine, err := newEngine(cfg, store)
	if err != nil {
		fatal(err)
	}

	pipeline, err := pronos.NewPredictionPipeline(cfg, engine, bundle)
	if err != nil {
		fatal(err)
	}

	target := store
	if *noStore {
		target = nil
	}

	predictions, err := pipeline.PredictAndStore(target, historical, upcoming)
	if err != nil {
		// The predictions are computed even when persistence fails,
		// emit them before reporting the failure
		if predictions != nil {
			emit(predictions)
		}
		fatal(err)
	}

	emit(predictions)
}

func runSync(args []string) {
	cfg := pronos.DefaultConfig()
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	verbose := commonFlags(fs, cfg)
	resultsURL := fs.String("results", "", "results CSV URL (football-data.co.uk layout)")
	fixturesURL := fs.String("fixtures", "", "fixtures page URL")
	weatherURL := fs.String("weather", "", "weather forecast URL")
	fs.Parse(args)

	if *verbose {
		logger.SetLevel(logger.DEBUG)
	}

	if *resultsURL == "" && *fixturesURL == "" && *weatherURL == "" {
		fatal(fmt.Errorf("sync requires at least one of -results, -fixtures or -weather"))
	}

	store, err := pronos.OpenStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	ds := pronos.NewDatasource(cfg, *resultsURL, *fixturesURL, *weatherURL)
	if err := ds.Sync(store); err != nil {
		fatal(err)
	}

	emit(map[string]string{"status": "ok"})
}
