package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/bitfsorg/ledgerfs-go/blobstore"
	"github.com/bitfsorg/ledgerfs-go/config"
	"github.com/bitfsorg/ledgerfs-go/envelope"
	"github.com/bitfsorg/ledgerfs-go/index"
	"github.com/bitfsorg/ledgerfs-go/keycustody"
	"github.com/bitfsorg/ledgerfs-go/ledger"
	"github.com/bitfsorg/ledgerfs-go/logging"
	"github.com/bitfsorg/ledgerfs-go/metrics"
	"github.com/bitfsorg/ledgerfs-go/network"
	"github.com/bitfsorg/ledgerfs-go/objectstore"
	"github.com/bitfsorg/ledgerfs-go/verify"
)

// app holds the wired components of a running daemon.
type app struct {
	cfg      config.Config
	log      *log.Logger
	metrics  *metrics.Metrics
	ledger   ledger.Ledger
	index    index.Index
	blobs    *blobstore.Store
	manager  *objectstore.Manager
	verifier *verify.Verifier

	closers []io.Closer
}

// newApp wires every component from cfg. The caller must Close the app.
func newApp(cfg config.Config) (a *app, err error) {
	logger, logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, log: logger, metrics: metrics.New()}
	a.closers = append(a.closers, logCloser)
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if a.ledger, err = a.openLedger(); err != nil {
		return nil, err
	}
	if a.index, err = a.openIndex(); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.index)

	if cfg.ContentPolicy == config.PolicyExternalize {
		if a.blobs, err = blobstore.New(cfg.BlobDirOrDefault()); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.blobs)
	}

	codec, err := envelope.NewCodec(cfg.MaxRecordSize)
	if err != nil {
		return nil, err
	}
	a.manager, err = objectstore.New(objectstore.Config{
		Ledger:      a.ledger,
		Index:       a.index,
		Codec:       codec,
		Blobs:       a.blobs,
		Policy:      objectstore.ContentPolicy(cfg.ContentPolicy),
		KeyRef:      cfg.OperatorKey,
		UniqueNames: cfg.UniqueNames,
		Logger:      logger.WithField("component", "objectstore"),
		Metrics:     a.metrics,
	})
	if err != nil {
		return nil, err
	}
	a.verifier, err = verify.New(verify.Config{
		Ledger:  a.ledger,
		Index:   a.index,
		Codec:   codec,
		Blobs:   a.blobs,
		Logger:  logger.WithField("component", "verify"),
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openLedger() (ledger.Ledger, error) {
	if a.cfg.Ledger == config.LedgerMemory {
		a.log.Warn("using the in-memory ledger; nothing is persisted")
		return ledger.NewMemory(), nil
	}

	rpc, err := network.ResolveConfig(network.RPCConfig{
		URL:      a.cfg.RPCURL,
		User:     a.cfg.RPCUser,
		Password: a.cfg.RPCPass,
		Retries:  a.cfg.RPCRetries,
	}, a.cfg.Network)
	if err != nil {
		return nil, err
	}

	tipDir := filepath.Join(a.cfg.DataDir, "ledger")
	if err := os.MkdirAll(tipDir, 0700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	tips, err := ledger.OpenTipStore(filepath.Join(tipDir, "tips.db"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, tips)

	custody := keycustody.NewFileCustody(a.cfg.KeyDirOrDefault(), a.cfg.OperatorPassphrase)
	client := network.NewRPCClient(*rpc, network.WithLogger(a.log.WithField("component", "rpc")))
	return ledger.NewBSV(client, custody, tips, ledger.BSVConfig{
		KeyRef:           a.cfg.OperatorKey,
		Mainnet:          a.cfg.Network == "mainnet",
		MinConfirmations: int64(a.cfg.MinConfirmations),
		Poller:           ledger.NewPoller(a.cfg.PollAttempts, a.cfg.PollMin, a.cfg.PollMax),
		Logger:           a.log.WithField("component", "ledger"),
		Metrics:          a.metrics,
	})
}

func (a *app) openIndex() (index.Index, error) {
	switch a.cfg.Index {
	case config.IndexMemory:
		return index.NewMemoryIndex(), nil
	case config.IndexPostgres:
		return index.NewPostgresIndex(a.cfg.PostgresDSN)
	default:
		return index.OpenStormIndex(filepath.Join(a.cfg.DataDir, "index.db"))
	}
}

// Close releases every opened resource in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
