package pmulog

import "go.uber.org/zap/zapcore"

type Options struct {
	Level    zapcore.Level
	LogDir   string
	LineNum  bool
	NoStdout bool // no console output
	TraceOn  bool // frame trace logging
}

func NewOptions() *Options {

	return &Options{
		Level:  zapcore.InfoLevel,
		LogDir: "logs",
	}
}
