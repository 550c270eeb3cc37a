// Copyright (c) 2026 The Trapcov Authors.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS
// IN THE SOFTWARE.

// Package log holds the process-wide logger.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is a no-op until InitLogger is called.
	Logger = zap.NewNop().Sugar()
	Config zap.Config
)

// InitLogger builds a console logger writing to stderr. Debug output is
// enabled with verbose.
func InitLogger(verbose bool) error {
	Config = zap.NewDevelopmentConfig()
	Config.DisableStacktrace = true
	Config.DisableCaller = true
	Config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	Config.EncoderConfig.TimeKey = ""
	if verbose {
		Config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		Config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := Config.Build()
	if err != nil {
		return err
	}
	Logger = logger.Sugar()
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger.Sync()
}
