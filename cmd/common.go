package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/batch"
	"github.com/acostock/stocksuite/pkg/config"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/stock"
	"github.com/acostock/stocksuite/pkg/storage"
	"github.com/spf13/viper"
)

// app bundles what the batch commands and the server share.
type app struct {
	cfg     *config.Config
	api     *monday.Client
	db      *storage.DB
	orch    *batch.Orchestrator
	closers []func()
}

func newClient(m config.Monday) (*monday.Client, error) {
	return monday.NewClient(monday.Options{
		Token:      m.Token,
		URL:        m.APIURL,
		APIVersion: m.APIVersion,
		RetryMax:   m.RetryMax,
		Timeout:    m.Timeout,
	})
}

// openDB opens the run history, creating the default location if needed.
func openDB(path string) (*storage.DB, error) {
	dbPath, err := utils.GetAbsDBPath(path)
	if err != nil {
		return nil, fmt.Errorf("could not get database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening run history %s: %w", dbPath, err)
	}
	return db, nil
}

// openHistory opens an existing run history without loading the monday
// settings, for the commands that only read it.
func openHistory() (*storage.DB, error) {
	dbPath, err := utils.GetAbsDBPath(viper.GetString("storage.dbpath"))
	if err != nil {
		return nil, fmt.Errorf("could not get database path: %w", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database file not found: %s", dbPath)
	}
	return storage.Open(dbPath)
}

// newApp wires the monday client, the stock locker, the run history and the
// orchestrator from the loaded config.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	if a.api, err = newClient(cfg.Monday); err != nil {
		return nil, err
	}

	if a.db, err = openDB(cfg.Storage.DBPath); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.db.Close() })

	var locker stock.Locker
	if cfg.Lock.RedisAddr != "" {
		rl, rdb, err := stock.NewRedisLocker(ctx, cfg.Lock.RedisAddr, cfg.Lock.TTL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { rdb.Close() })
		locker = rl
		utils.Log.Debugf("Using redis stock locks at %s", cfg.Lock.RedisAddr)
	}

	a.orch = batch.New(cfg, a.api, batch.Options{
		Log:    utils.Log,
		Locker: locker,
		Store:  a.db,
	})
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// runLock takes the file lock of the kind's board so that a CLI run and the
// server never work on the same batch at once.
func (a *app) runLock(ctx context.Context, kind batch.Kind) (func(), error) {
	boardID := a.cfg.Entry.BoardID
	if kind == batch.KindExit {
		boardID = a.cfg.Exit.BoardID
	}
	l, err := utils.NewRunLock(a.cfg.Lock.Dir, string(kind), boardID)
	if err != nil {
		return nil, err
	}
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := l.Unlock(); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
