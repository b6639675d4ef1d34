package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/meetbrief/meetbrief/pkg/buildinfo"
	"github.com/meetbrief/meetbrief/pkg/logging"
	"github.com/meetbrief/meetbrief/pkg/meeting"
	"github.com/meetbrief/meetbrief/pkg/pipeline/analysis"
	"github.com/meetbrief/meetbrief/pkg/pipeline/engines"
	"github.com/meetbrief/meetbrief/pkg/pipeline/queues"
	"github.com/meetbrief/meetbrief/pkg/pipeline/workers"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the processing pipeline",
		Long: `Run the full processing pipeline: the stage worker pools, the job
coordinator with its deadline watchdog, and the Prometheus metrics
endpoint. Multiple worker processes may run against the same Redis and
Postgres; the queues load-balance across them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	transcriber := engines.NewHTTPTranscriptionEngine(engines.Config{
		BaseURL: rt.cfg.TranscriptionEngine.BaseURL,
		Timeout: rt.cfg.TranscriptionEngine.Timeout,
	})
	defer transcriber.Close()

	diarizer := engines.NewHTTPDiarizationEngine(engines.Config{
		BaseURL: rt.cfg.DiarizationEngine.BaseURL,
		Timeout: rt.cfg.DiarizationEngine.Timeout,
	})
	defer diarizer.Close()

	llm := engines.NewHTTPLLMClient(engines.Config{
		BaseURL: rt.cfg.LLM.BaseURL,
		Timeout: rt.cfg.LLM.Timeout,
	})
	defer llm.Close()

	analyzer := analysis.NewAnalyzer(llm,
		analysis.WithConfig(analysis.Config{
			Model:       rt.cfg.LLM.Model,
			MaxTokens:   rt.cfg.LLM.MaxTokens,
			Temperature: rt.cfg.LLM.Temperature,
			Timeout:     rt.cfg.LLM.Timeout,
		}),
		analysis.WithLogger(logger),
	)

	rt.coord.Start()
	defer rt.coord.Stop()

	poolConfigs := workers.DefaultConfigs()
	transcribePool := workers.NewPool(
		poolConfig(poolConfigs[meeting.StageTranscribe], rt.cfg.Workers.Transcribe, rt.cfg.Deadlines.Transcribe),
		rt.transcribe,
		workers.NewTranscribeHandler(transcriber, rt.coord, logger, rt.metrics).Handle,
		logger,
	)
	diarizePool := workers.NewPool(
		poolConfig(poolConfigs[meeting.StageDiarize], rt.cfg.Workers.Diarize, rt.cfg.Deadlines.Diarize),
		rt.diarize,
		workers.NewDiarizeHandler(diarizer, rt.coord, logger, rt.metrics).Handle,
		logger,
	)
	analyzePool := workers.NewPool(
		poolConfig(poolConfigs[meeting.StageAnalysis], rt.cfg.Workers.Analyze, rt.cfg.Deadlines.Analyze),
		rt.analyze,
		workers.NewAnalyzeHandler(analyzer, rt.coord, logger, rt.metrics).Handle,
		logger,
	)

	transcribePool.Start()
	diarizePool.Start()
	analyzePool.Start()
	defer func() {
		transcribePool.Stop()
		diarizePool.Stop()
		analyzePool.Stop()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/buildinfo", buildinfo.Handler("meetbrief-worker"))
	mux.HandleFunc("/healthz", healthHandler(rt))
	metricsSrv := &http.Server{
		Addr:    rt.cfg.MetricsAddr,
		Handler: mux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}()

	go reportQueueDepths(ctx, rt)
	go recoverStaleMessages(ctx, rt)

	logger.Info("pipeline running",
		logging.F("metrics_addr", rt.cfg.MetricsAddr),
		logging.F("transcribe_workers", rt.cfg.Workers.Transcribe),
		logging.F("diarize_workers", rt.cfg.Workers.Diarize),
		logging.F("analyze_workers", rt.cfg.Workers.Analyze))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", logging.F("signal", sig.String()))
	case <-ctx.Done():
	}
	return nil
}

// poolConfig applies the configured worker count and ties the handler
// timeout to the stage deadline.
func poolConfig(base workers.Config, count int, deadline time.Duration) workers.Config {
	if count > 0 {
		base.Count = count
	}
	if deadline > 0 {
		base.HandlerTimeout = deadline
	}
	return base
}

// healthHandler reports whether the shared infrastructure is reachable.
func healthHandler(rt *runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := rt.redis.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unreachable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if rt.pgStore != nil {
			if err := rt.pgStore.Ping(ctx); err != nil {
				http.Error(w, "postgres unreachable: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}
}

// recoverStaleMessages requeues items whose visibility timeout lapsed, so
// work claimed by a crashed worker is redelivered instead of sitting in
// the processing set until the job's deadline expires.
func recoverStaleMessages(ctx context.Context, rt *runtime) {
	type staleRecoverer interface {
		RecoverStale(ctx context.Context) error
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range []queues.Queue{rt.transcribe, rt.diarize, rt.analyze} {
				r, ok := q.(staleRecoverer)
				if !ok {
					continue
				}
				if err := r.RecoverStale(ctx); err != nil {
					rt.logger.Warn("stale message recovery failed",
						logging.F("queue", q.Name()),
						logging.Err(err))
				}
			}
		}
	}
}

// reportQueueDepths samples queue depths into the metrics gauge.
func reportQueueDepths(ctx context.Context, rt *runtime) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, q := range []struct {
				name  string
				depth func(context.Context) (int64, error)
			}{
				{rt.transcribe.Name(), rt.transcribe.Depth},
				{rt.diarize.Name(), rt.diarize.Depth},
				{rt.analyze.Name(), rt.analyze.Depth},
			} {
				if depth, err := q.depth(ctx); err == nil {
					rt.metrics.SetQueueDepth(q.name, float64(depth))
				}
			}
		}
	}
}
