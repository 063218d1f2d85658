// Command firesctl runs a single fire query against FIRMS and prints the
// result. It reads the same environment as the service (FIRMS_MAP_KEY,
// FIRMS_BASE_URL, ...) and never publishes to Kafka.
//
// Usage:
//
//	go run ./cmd/firesctl -country USA -start 2024-01-01 -end 2024-01-20
//	go run ./cmd/firesctl -bbox -125,24,-66,49 -format stats
//	go run ./cmd/firesctl -country AUS -compose
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/wildfire-data-service/internal/adapter/firms"
	"github.com/couchcryptid/wildfire-data-service/internal/config"
	"github.com/couchcryptid/wildfire-data-service/internal/domain"
	"github.com/couchcryptid/wildfire-data-service/internal/format"
	"github.com/couchcryptid/wildfire-data-service/internal/observability"
	"github.com/couchcryptid/wildfire-data-service/internal/pipeline"
)

type options struct {
	country     string
	bbox        string
	start       string
	end         string
	sources     string
	concurrency int
	format      string
	compose     bool
	out         string
	frpHigh     float64
	frpMid      float64
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	query, err := opts.query()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLoggerTo(os.Stderr, cfg)
	metrics := observability.NewMetrics()

	availability := firms.NewCachedAvailability(
		firms.NewAvailabilityClient(cfg.FIRMSBaseURL, cfg.FIRMSMapKey, cfg.AvailabilityTimeout, logger),
		cfg.FIRMSMapKey, cfg.AvailabilityTTL, clockwork.NewRealClock(), metrics,
	)
	fetcher := firms.NewFetcher(cfg.FIRMSTimeout, firms.RetryPolicy{
		MaxAttempts: cfg.FIRMSRetries,
		BackoffBase: cfg.FIRMSBackoffBase,
		BackoffUnit: time.Second,
		MaxBackoff:  cfg.FIRMSMaxBackoff,
	}, cfg.MaxConcurrency, logger, metrics)
	orch := pipeline.New(availability, firms.NewComposer(cfg.FIRMSBaseURL, cfg.FIRMSMapKey), fetcher, logger, metrics, pipeline.Settings{
		Priority:    domain.ParsePriority(cfg.SourcePriority),
		SegmentDays: cfg.SegmentDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plan, err := orch.Prepare(ctx, query)
	if err != nil {
		return err
	}
	if plan.NoSource {
		log.Printf("no source covers %s", plan.Window)
	}

	w := io.Writer(os.Stdout)
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if opts.compose {
		return writeJSON(w, composed(plan))
	}
	if opts.format == "ndjson" {
		return streamFeatures(ctx, w, orch, plan)
	}

	res, err := orch.Execute(ctx, plan)
	if err != nil {
		return err
	}
	log.Printf("%s: %d detections from %d segments (%d duplicates dropped)",
		plan.Source, len(res.Records), len(plan.Targets), res.Dropped)

	switch opts.format {
	case "json":
		return writeJSON(w, res.Records)
	case "stats":
		return writeJSON(w, format.ComputeStats(res.Records, format.Thresholds{High: opts.frpHigh, Mid: opts.frpMid}, plan.Window))
	default:
		return writeJSON(w, format.FeatureCollection(res.Records))
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	def := format.DefaultThresholds()

	fs := flag.NewFlagSet("firesctl", flag.ContinueOnError)
	fs.StringVar(&o.country, "country", "", "ISO-3 country code")
	fs.StringVar(&o.bbox, "bbox", "", "bounding box as west,south,east,north")
	fs.StringVar(&o.start, "start", "", "first day, YYYY-MM-DD (default today)")
	fs.StringVar(&o.end, "end", "", "last day, YYYY-MM-DD (default today)")
	fs.StringVar(&o.sources, "sources", "", "comma-separated source priority")
	fs.IntVar(&o.concurrency, "concurrency", 0, "max parallel segment fetches (1-20)")
	fs.StringVar(&o.format, "format", "geojson", "output format: geojson, json, stats, ndjson")
	fs.BoolVar(&o.compose, "compose", false, "print the selected source and redacted URLs without fetching")
	fs.StringVar(&o.out, "out", "", "write output to this file instead of stdout")
	fs.Float64Var(&o.frpHigh, "frp-high", def.High, "FRP threshold for the high tier")
	fs.Float64Var(&o.frpMid, "frp-mid", def.Mid, "FRP threshold for the mid tier")
	if err := fs.Parse(args); err != nil {
		return o, err
	}

	switch o.format {
	case "geojson", "json", "stats", "ndjson":
	default:
		return o, fmt.Errorf("unknown -format %q", o.format)
	}
	if o.concurrency < 0 || o.concurrency > firms.MaxConcurrency {
		return o, fmt.Errorf("-concurrency must be between 1 and %d", firms.MaxConcurrency)
	}
	return o, nil
}

func (o options) query() (pipeline.Query, error) {
	q := pipeline.Query{
		Region:      domain.RegionInput{Country: o.country},
		StartDate:   o.start,
		EndDate:     o.end,
		Priority:    domain.ParsePriority(o.sources),
		Concurrency: o.concurrency,
	}
	if o.bbox == "" {
		return q, nil
	}
	coords, err := parseBBox(o.bbox)
	if err != nil {
		return q, err
	}
	q.Region.West, q.Region.South, q.Region.East, q.Region.North = &coords[0], &coords[1], &coords[2], &coords[3]
	return q, nil
}

func parseBBox(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != len(out) {
		return out, fmt.Errorf("-bbox needs four comma-separated numbers, got %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("-bbox: %q is not a number", p)
		}
		out[i] = v
	}
	return out, nil
}

type composeOutput struct {
	SelectedSource *domain.Source `json:"selected_source"`
	URLs           []string       `json:"urls"`
	Note           string         `json:"note,omitempty"`
}

func composed(plan *pipeline.Plan) composeOutput {
	if plan.NoSource {
		return composeOutput{URLs: []string{}, Note: "No data for requested date range"}
	}
	urls := make([]string, len(plan.Targets))
	for i, t := range plan.Targets {
		urls[i] = t.Redacted
	}
	src := plan.Source
	return composeOutput{SelectedSource: &src, URLs: urls}
}

func streamFeatures(ctx context.Context, w io.Writer, orch *pipeline.Orchestrator, plan *pipeline.Plan) error {
	enc := json.NewEncoder(w)
	n, err := orch.Stream(ctx, plan, func(rec domain.Record) error {
		f, ok := format.Feature(rec)
		if !ok {
			return nil
		}
		return enc.Encode(f)
	})
	if err != nil {
		return fmt.Errorf("stream stopped after %d detections: %w", n, err)
	}
	log.Printf("%s: streamed %d detections", plan.Source, n)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
