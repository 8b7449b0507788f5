package main

import (
	"context"
	"flag"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bowyer/internal/cache"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/encoder"
	"github.com/23skdu/longbow-bowyer/internal/encoding"
)

var (
	configPath    = flag.String("config", "", "Path to encoder config JSON (default: base config, vocab 30522)")
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP server (e.g. :8080)")
	maxConcurrent = flag.Int("max-concurrent", 1024, "Maximum number of concurrent sequences to process")
	seed          = flag.Int64("seed", 0, "Weight initialization seed (0 = time-based)")
	noCache       = flag.Bool("no-cache", false, "Disable the pooled-vector cache")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	encodeIDs     = flag.String("encode", "", "One-shot mode: encode id rows, e.g. '1,2,3;4,5,6'")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	cfg := encoder.DefaultConfig(30522)
	if *configPath != "" {
		var err error
		cfg, err = encoder.LoadConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
	}

	backend := device.NewCPUBackend()
	var (
		model *encoder.Model
		err   error
	)
	if *seed != 0 {
		model, err = encoder.NewModelSeeded(backend, cfg, *seed)
	} else {
		model, err = encoder.NewModel(backend, cfg)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build model")
	}
	log.Info().
		Int("hidden", cfg.HiddenSize).
		Int("layers", cfg.NumHiddenLayers).
		Int("heads", cfg.NumAttentionHeads).
		Str("backend", backend.Name()).
		Msg("Model ready")

	var vc cache.VectorCache
	if !*noCache {
		vc = cache.NewMapCache()
	}
	svc := encoding.NewService(model, vc, *maxConcurrent)

	if *listenAddr != "" {
		startServer(*listenAddr, svc)
		return
	}

	if *encodeIDs != "" {
		ids, err := parseIDRows(*encodeIDs)
		if err != nil {
			log.Fatal().Err(err).Msg("Bad -encode argument")
		}
		vecs, err := svc.EncodePooled(context.Background(), encoder.InputBatch{IDs: ids})
		if err != nil {
			log.Fatal().Err(err).Msg("Encode failed")
		}
		for i, v := range vecs {
			log.Info().Int("row", i).Floats32("vector", v).Msg("pooled")
		}
		return
	}

	flag.Usage()
}

// parseIDRows parses "1,2,3;4,5,6" into id rows.
func parseIDRows(s string) ([][]int, error) {
	rows := strings.Split(s, ";")
	out := make([][]int, len(rows))
	for i, row := range rows {
		fields := strings.Split(row, ",")
		out[i] = make([]int, len(fields))
		for j, f := range fields {
			v, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, err
			}
			out[i][j] = v
		}
	}
	return out, nil
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bowyer"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
