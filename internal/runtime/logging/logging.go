// Package logging is the structured logging seam for the nsqlink runtime.
// Components write to a small ServiceLogger contract; bridges exist in both
// directions between that contract and Watermill's LoggerAdapter, and slog is
// supported through Watermill's own slog adapter.
package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields carries the structured key/value pairs attached to a log line.
type LogFields map[string]any

// ServiceLogger is the logging contract every runtime component writes to.
// Applications adapt whatever logger they already run; the runtime never
// depends on a concrete logging backend.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// NewSlogServiceLogger adapts a slog.Logger to the ServiceLogger contract.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("nsqlink: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLogger(log))
}

// NewWatermillServiceLogger adapts a Watermill LoggerAdapter to the
// ServiceLogger contract.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("nsqlink: watermill logger cannot be nil")
	}
	return adapterBacked{logger}
}

// Nop returns a ServiceLogger that discards everything.
func Nop() ServiceLogger {
	return adapterBacked{watermill.NopLogger{}}
}

// adapterBacked routes the ServiceLogger contract onto a LoggerAdapter.
type adapterBacked struct {
	sink watermill.LoggerAdapter
}

func (l adapterBacked) With(fields LogFields) ServiceLogger {
	return adapterBacked{l.sink.With(watermill.LogFields(fields))}
}

func (l adapterBacked) Debug(msg string, fields LogFields) {
	l.sink.Debug(msg, watermill.LogFields(fields))
}

func (l adapterBacked) Info(msg string, fields LogFields) {
	l.sink.Info(msg, watermill.LogFields(fields))
}

func (l adapterBacked) Error(msg string, err error, fields LogFields) {
	l.sink.Error(msg, err, watermill.LogFields(fields))
}

func (l adapterBacked) Trace(msg string, fields LogFields) {
	l.sink.Trace(msg, watermill.LogFields(fields))
}

// NewWatermillAdapter is the reverse bridge: it lets Watermill components log
// through a ServiceLogger, so one logger serves both worlds.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("nsqlink: ServiceLogger cannot be nil")
	}
	return serviceBacked{log}
}

type serviceBacked struct {
	base ServiceLogger
}

func (a serviceBacked) Error(msg string, err error, fields watermill.LogFields) {
	a.base.Error(msg, err, LogFields(fields))
}

func (a serviceBacked) Info(msg string, fields watermill.LogFields) {
	a.base.Info(msg, LogFields(fields))
}

func (a serviceBacked) Debug(msg string, fields watermill.LogFields) {
	a.base.Debug(msg, LogFields(fields))
}

func (a serviceBacked) Trace(msg string, fields watermill.LogFields) {
	a.base.Trace(msg, LogFields(fields))
}

func (a serviceBacked) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return serviceBacked{a.base.With(LogFields(fields))}
}
