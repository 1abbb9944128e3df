// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// minRecordSize is the smallest record limit that can hold a folder envelope.
const minRecordSize = 256

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if cfg.Network != "mainnet" && cfg.Network != "testnet" && cfg.Network != "regtest" {
		return ErrInvalidNetwork
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	switch cfg.Ledger {
	case LedgerBSV, LedgerMemory:
	default:
		return fmt.Errorf("%w: ledger %q", ErrInvalidBackend, cfg.Ledger)
	}

	switch cfg.Index {
	case IndexBolt, IndexMemory:
	case IndexPostgres:
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres index requires postgresdsn", ErrInvalidBackend)
		}
	default:
		return fmt.Errorf("%w: index %q", ErrInvalidBackend, cfg.Index)
	}

	if cfg.ContentPolicy != PolicyExternalize && cfg.ContentPolicy != PolicyReject {
		return ErrInvalidPolicy
	}

	if cfg.MaxRecordSize < minRecordSize {
		return fmt.Errorf("%w: maxrecordsize must be at least %d", ErrInvalidLimit, minRecordSize)
	}
	if cfg.PollAttempts < 1 {
		return fmt.Errorf("%w: pollattempts must be at least 1", ErrInvalidLimit)
	}
	if cfg.PollMin <= 0 || cfg.PollMax < cfg.PollMin {
		return fmt.Errorf("%w: poll interval bounds", ErrInvalidLimit)
	}
	if cfg.RPCRetries < 0 {
		return fmt.Errorf("%w: rpcretries must not be negative", ErrInvalidLimit)
	}
	if cfg.MinConfirmations < 0 {
		return fmt.Errorf("%w: minconfirmations must not be negative", ErrInvalidLimit)
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
