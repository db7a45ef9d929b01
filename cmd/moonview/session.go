package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/eternalApril/moonview/internal/backends"
	"github.com/eternalApril/moonview/internal/config"
	"github.com/eternalApril/moonview/internal/driver"
	"github.com/eternalApril/moonview/internal/history"
	"github.com/eternalApril/moonview/internal/logger"
	"github.com/eternalApril/moonview/internal/metrics"
	"github.com/eternalApril/moonview/internal/result"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// session is everything a command needs to talk to one connection
type session struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	server  *http.Server
	history *history.History

	backend *backends.Backend
	driver  *driver.Driver
}

// loadConfig reads the configuration and builds the logger and metrics
func loadConfig(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	if c.Bool(verboseFlag.Name) {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log}

	addr := c.String(metricsAddrFlag.Name)
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Address
	}
	if addr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, err
		}
		s.metrics = m
		s.server = &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("serving metrics", zap.String("address", addr))
	}

	return s, nil
}

// openSession connects the selected connection
func openSession(c *cli.Context) (*session, error) {
	s, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	connCfg, err := s.cfg.Connection(c.String(connectionFlag.Name))
	if err != nil {
		s.close()
		return nil, err
	}

	b, err := backends.Open(connCfg, s.log, s.metrics)
	if err != nil {
		s.close()
		return nil, err
	}
	s.backend = b

	observers := []result.Observer{logger.NewObserver(s.log)}
	if s.cfg.History.Enabled {
		h, err := history.Open(s.cfg.History.Filename, s.cfg.History.Fsync, s.log)
		if err != nil {
			s.close()
			return nil, err
		}
		s.history = h
		observers = append(observers, h.Observer(connCfg.Name))
	}

	d, err := b.NewDriver(
		driver.WithLogger(s.log),
		driver.WithObservers(observers...),
		driver.WithCacheSize(s.cfg.Cache.Size),
		driver.WithPageSize(s.cfg.Keyspace.PageSize),
	)
	if err != nil {
		s.close()
		return nil, err
	}
	s.driver = d

	if err := d.Connect(c.Context); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	if s.driver != nil && s.driver.IsConnected() {
		if err := s.driver.Disconnect(); err != nil {
			s.log.Warn("disconnect failed", zap.Error(err))
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.log.Warn("history close failed", zap.Error(err))
		}
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx) //nolint:errcheck
	}
	s.log.Sync() //nolint:errcheck
}

// withSession runs fn on an open session and closes it afterwards
func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(c, s)
	}
}
