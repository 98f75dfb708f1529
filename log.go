// Copyright (C) The Phasing Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package phasing

import (
	"os"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

func init() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.StandardLogger().Formatter = &log.TextFormatter{DisableTimestamp: true}
	}
}

// SetLogLevel parses a textual logging threshold (trace, debug, info,
// warn, error, fatal, or panic) and applies it to the package logger.
// The core never parses command-line flags itself (see Non-goals);
// this exists so an embedding CLI can forward its own -loglevel flag.
func SetLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}
