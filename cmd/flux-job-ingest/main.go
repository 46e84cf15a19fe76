// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command flux-job-ingest runs the job-ingest core as a standalone
// broker-less HTTP service: job-ingest.submit and job-manager.submit are
// exposed over the transport package's mux broker, and job-info.event-
// watch is served from the same in-memory eventlog store that a real
// job manager would publish into (spec.md §6).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/envelope"
	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
	"github.com/flux-framework/flux-core-sub008/internal/fluid"
	"github.com/flux-framework/flux-core-sub008/internal/ingest"
	"github.com/flux-framework/flux-core-sub008/internal/kvs"
	"github.com/flux-framework/flux-core-sub008/internal/pipeline"
	"github.com/flux-framework/flux-core-sub008/internal/policy"
	"github.com/flux-framework/flux-core-sub008/internal/transport"
	"github.com/flux-framework/flux-core-sub008/internal/workcrew"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
)

func main() {
	var (
		listenAddr   = flag.String("listen", ":8202", "HTTP listen address")
		generatorID  = flag.Uint64("generator-id", 0, "FLUID generator_id for this rank")
		frobCommand  = flag.String("frobnicator-command", "", "job-frobnicator helper command, empty disables it")
		validator    = flag.String("validator-command", "", "job-validator helper command, empty disables it")
		logFormat    = flag.String("log-format", "text", "log output format: text or json")
		logLevelFlag = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := logging.New(&logging.Config{
		Level:   parseLevel(*logLevelFlag),
		Format:  logging.Format(*logFormat),
		Output:  os.Stderr,
		Service: "flux-job-ingest",
	})

	fluidGen, err := fluid.New(*generatorID, 0)
	if err != nil {
		logger.Error("fluid generator init failed", "err", err)
		os.Exit(1)
	}

	ingestCfg := config.NewDefaultIngestConfig()
	ingestCfg.Load()
	if err := ingestCfg.Validate(); err != nil {
		logger.Error("invalid ingest configuration", "err", err)
		os.Exit(1)
	}

	policyCfg := config.NewDefaultPolicyConfig()
	chain := policy.NewChain(
		policy.NewJobspecDefaultPlugin(),
		policy.NewLimitDurationPlugin(),
		policy.NewLimitJobSizePlugin(),
	)
	if err := chain.ConfUpdate(policyCfg); err != nil {
		logger.Error("policy configuration rejected", "err", err)
		os.Exit(1)
	}

	var frobPool, validPool *workcrew.Pool
	frobCfg := config.NewDefaultWorkcrewConfig(*frobCommand)
	if *frobCommand != "" {
		frobPool = workcrew.New(workcrew.Config{
			Command: *frobCommand, MaxWorkers: frobCfg.MaxWorkers,
			InputBufferBytes: frobCfg.InputBufferBytes, Frobnicator: true,
		}, logger.With("pool", "frobnicator"))
	}
	if *validator != "" {
		validCfg := config.NewDefaultWorkcrewConfig(*validator)
		validPool = workcrew.New(workcrew.Config{
			Command: *validator, MaxWorkers: validCfg.MaxWorkers,
			InputBufferBytes: validCfg.InputBufferBytes,
		}, logger.With("pool", "validator"))
	}
	pl := pipeline.New(frobPool, validPool, frobCfg, policyCfg)

	store := kvs.NewInMemory()
	events := eventlog.NewStore()
	jobManager := &loopbackJobManager{events: events, logger: logger}

	svc := ingest.New(ingestCfg, fluidGen, envelope.NewRegistry(), chain, pl, store, jobManager, nil, logger)

	broker := transport.NewBroker(logger)
	broker.HandleTopic("job-ingest.submit", submitHandler(svc))
	broker.HandleTopic("job-manager.submit", jobManager.handleAnnounce)
	broker.HandleTopic("job-manager.cancel", cancelHandler(events, logger))
	broker.HandleTopic("job-info.queue-status", queueStatusHandler())
	broker.Router().Handle("/rpc/job-info.event-watch", transport.NewEventStreamServer(events, logger))

	srv := &http.Server{Addr: *listenAddr, Handler: broker.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("flux-job-ingest listening", "addr", *listenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	workerExited := make(chan struct{})
	expectedWorkers := 0
	stopWorkers := func() {
		var wg sync.WaitGroup
		if frobPool != nil {
			wg.Add(1)
			frobPool.StopNotify(wg.Done)
		}
		if validPool != nil {
			wg.Add(1)
			validPool.StopNotify(wg.Done)
		}
		go func() {
			wg.Wait()
			close(workerExited)
		}()
	}
	if frobPool != nil || validPool != nil {
		expectedWorkers = 1
	}
	svc.Shutdown(stopWorkers, workerExited, expectedWorkers)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func submitHandler(svc *ingest.Service) transport.Handler {
	return func(r *http.Request, msg api.Message) (any, error) {
		var req api.SubmitRequest
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				return nil, err
			}
		}
		resp := svc.Submit(r.Context(), req, msg.Cred, float64(time.Now().UnixNano())/1e9)
		return resp, nil
	}
}

// cancelHandler implements job-manager.cancel by recording a fatal
// primary "exception" followed by "finish"/"clean", the sequence an
// attach client watching this job's primary eventlog expects to see on
// cancellation, spec.md §4.9 scenario for ctrl-C-initiated cancel.
func cancelHandler(events *eventlog.Store, logger logging.Logger) transport.Handler {
	return func(r *http.Request, msg api.Message) (any, error) {
		var req struct {
			ID   uint64 `json:"id"`
			Note string `json:"note"`
		}
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				return nil, err
			}
		}
		exc, _ := json.Marshal(api.ExceptionContext{Type: "cancel", Severity: 0, Note: req.Note})
		if err := events.Append(req.ID, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventException, Context: exc}); err != nil {
			return nil, err
		}
		fin, _ := json.Marshal(api.FinishContext{Status: 15}) // SIGTERM
		_ = events.Append(req.ID, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventFinish, Context: fin})
		_ = events.Append(req.ID, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventClean})
		events.Close(req.ID, eventlog.LogPrimary)
		events.Close(req.ID, eventlog.LogExec)
		events.Close(req.ID, eventlog.LogOutput)
		logger.Info("job canceled", "job", req.ID)
		return struct{}{}, nil
	}
}

// queueStatusHandler always reports queues as running: this deployment
// has no queue-enable/disable subsystem (spec.md Non-goals), so the
// statusline's "<queue> queue stopped" suffix never fires here.
func queueStatusHandler() transport.Handler {
	return func(r *http.Request, msg api.Message) (any, error) {
		return map[string]bool{"stopped": false}, nil
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
