package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/bytecodelab/app/services/labd/handlers"
	"github.com/ardanlabs/bytecodelab/app/services/labd/handlers/v1/labgrp"
	"github.com/ardanlabs/bytecodelab/business/core/bench"
	"github.com/ardanlabs/bytecodelab/business/core/grouping"
	"github.com/ardanlabs/bytecodelab/business/core/jobs"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/chainenv"
	"github.com/ardanlabs/bytecodelab/foundation/contract/keystore"
	"github.com/ardanlabs/bytecodelab/foundation/events"
	"github.com/ardanlabs/bytecodelab/foundation/logger"
	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LABD")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			APIHost         string        `conf:"default:0.0.0.0:3000"`
			CORSOrigin      string        `conf:"default:*"`
		}
		Lab struct {
			ArtifactsPath    string        `conf:"default:zlab/artifacts"`
			KeysPath         string        `conf:"default:zlab/keys"`
			ReportsPath      string        `conf:"default:zlab"`
			PlanPath         string        `conf:"help:YAML plan overriding the default experiment settings"`
			DatasetsPath     string        `conf:"help:YAML datasets for the grouping job"`
			MetadataMode     string        `conf:"default:embedded"`
			Deployer         string        `conf:"default:deployer"`
			Auditor          string        `conf:"help:key name signing attestations, a throw away key when empty"`
			IterationTimeout time.Duration `conf:"default:1m"`
			Workers          int           `conf:"default:0"`
		}
		Chain struct {
			RPCURL      string `conf:"help:url of a development node, a simulated chain when empty"`
			ResetMethod string `conf:"default:hardhat_reset"`
			GasLimit    uint64 `conf:"default:30000000"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "bytecode lab service",
		},
	}

	const prefix = "LABD"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Lab Support

	store, err := artifact.NewDisk(cfg.Lab.ArtifactsPath)
	if err != nil {
		return fmt.Errorf("opening artifact store: %w", err)
	}

	ks, err := keystore.New(cfg.Lab.KeysPath)
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}

	for _, name := range ks.Names() {
		key, _ := ks.Key(name)
		log.Infow("startup", "status", "keystore", "name", name, "address", crypto.PubkeyToAddress(key.PublicKey))
	}

	deployer, err := deployerKey(ks, cfg.Lab.Deployer, cfg.Chain.RPCURL)
	if err != nil {
		return err
	}

	var auditor *ecdsa.PrivateKey
	if cfg.Lab.Auditor != "" {
		if auditor, err = ks.Key(cfg.Lab.Auditor); err != nil {
			return fmt.Errorf("loading auditor key: %w", err)
		}
	}

	plan := bench.DefaultPlan()
	if cfg.Lab.PlanPath != "" {
		if plan, err = bench.LoadPlan(cfg.Lab.PlanPath); err != nil {
			return err
		}
	}

	mode, err := artifact.ParseMetadataMode(cfg.Lab.MetadataMode)
	if err != nil {
		return err
	}

	datasets := grouping.DefaultDatasets(mode)
	if cfg.Lab.DatasetsPath != "" {
		if datasets, err = grouping.LoadDatasets(cfg.Lab.DatasetsPath); err != nil {
			return err
		}
	}

	// The jobs accept a function of this signature to allow the application
	// to log. Job progress is also sent to any websocket client connected
	// through the events package.
	evts := events.New()
	slot := jobs.NewSlot(func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s)
		evts.Publish(events.Event{Job: "slot", Message: s})
	})

	lab := labgrp.Lab{
		Store: store,
		Target: chainenv.Target{
			URL:         cfg.Chain.RPCURL,
			ResetMethod: cfg.Chain.ResetMethod,
			GasLimit:    cfg.Chain.GasLimit,
		},
		Deployer:         deployer,
		Auditor:          auditor,
		Plan:             plan,
		Datasets:         datasets,
		ReportsPath:      cfg.Lab.ReportsPath,
		IterationTimeout: cfg.Lab.IterationTimeout,
		Workers:          cfg.Lab.Workers,
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	debugMux := handlers.DebugMux(build, log, store)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start API Service

	log.Infow("startup", "status", "initializing V1 API support")

	apiMux := handlers.APIMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		CORSOrigin: cfg.Web.CORSOrigin,
		Slot:       slot,
		Lab:        lab,
		Evts:       evts,
	})

	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// A running job restores its shared state before it returns.
		log.Infow("shutdown", "status", "cancel running job")
		if err := slot.Shutdown(ctx); err != nil {
			log.Errorw("shutdown", "status", "job did not stop", "ERROR", err)
		}

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		log.Infow("shutdown", "status", "shutdown API started")
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// deployerKey returns the named key. A simulated chain funds a throw away
// key when the name is unknown.
func deployerKey(ks *keystore.KeyStore, name string, rpcURL string) (*ecdsa.PrivateKey, error) {
	key, err := ks.Key(name)
	if err == nil {
		return key, nil
	}

	if rpcURL != "" {
		return nil, fmt.Errorf("loading deployer key: %w", err)
	}

	return crypto.GenerateKey()
}
