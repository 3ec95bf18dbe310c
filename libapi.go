package nsqlink

import (
	runtimepkg "github.com/nsqlink/nsqlink/internal/runtime"
	configpkg "github.com/nsqlink/nsqlink/internal/runtime/config"
	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
)

type (
	Config = configpkg.Config

	Client        = runtimepkg.Client
	Producer      = runtimepkg.Producer
	PubConn       = runtimepkg.PubConn
	WorkerPool    = runtimepkg.WorkerPool
	Scheduler     = runtimepkg.Scheduler
	ScheduledTask = runtimepkg.ScheduledTask

	// Collaborator contracts the coordinator consumes.
	Publisher          = runtimepkg.Publisher
	Subscriber         = runtimepkg.Subscriber
	ConsumerConnection = runtimepkg.ConsumerConnection

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConnectionError = errspkg.ConnectionError
	ProtocolError   = errspkg.ProtocolError
	IOError         = errspkg.IOError
	StateError      = errspkg.StateError
)

var (
	NewClient     = runtimepkg.NewClient
	DefaultClient = runtimepkg.DefaultClient
	NewProducer   = runtimepkg.NewProducer
	NewPubConn    = runtimepkg.NewPubConn
	NewWorkerPool = runtimepkg.NewWorkerPool
	NewScheduler  = runtimepkg.NewScheduler

	ValidateConfig = configpkg.ValidateConfig

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter

	ErrTopicRequired    = errspkg.ErrTopicRequired
	ErrMessageRequired  = errspkg.ErrMessageRequired
	ErrNoMessages       = errspkg.ErrNoMessages
	ErrPublisherStopped = errspkg.ErrPublisherStopped
	ErrPoolStopped      = errspkg.ErrPoolStopped
	ErrPoolSaturated    = errspkg.ErrPoolSaturated
	ErrSchedulerStopped = errspkg.ErrSchedulerStopped
	ErrConnClosed       = errspkg.ErrConnClosed
	ErrAckTimeout       = errspkg.ErrAckTimeout
)
