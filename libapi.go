package puppets

import (
	"time"

	runtimepkg "github.com/drblury/puppets/internal/runtime"
	actionspkg "github.com/drblury/puppets/internal/runtime/actions"
	bridgepkg "github.com/drblury/puppets/internal/runtime/bridge"
	channelpkg "github.com/drblury/puppets/internal/runtime/channel"
	configpkg "github.com/drblury/puppets/internal/runtime/config"
	dispatchpkg "github.com/drblury/puppets/internal/runtime/dispatch"
	errspkg "github.com/drblury/puppets/internal/runtime/errors"
	idspkg "github.com/drblury/puppets/internal/runtime/ids"
	jsoncodec "github.com/drblury/puppets/internal/runtime/jsoncodec"
	lifecyclepkg "github.com/drblury/puppets/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/puppets/internal/runtime/logging"
	metadatapkg "github.com/drblury/puppets/internal/runtime/metadata"
	transportpkg "github.com/drblury/puppets/transport"
)

type (
	Config       = configpkg.Config
	Application  = runtimepkg.Application
	Dependencies = runtimepkg.Dependencies

	Puppet       = runtimepkg.Puppet
	Definition   = runtimepkg.Definition
	Options      = runtimepkg.Options
	PieceContext = runtimepkg.PieceContext
	PieceFactory = runtimepkg.PieceFactory
	Component    = runtimepkg.Component
	Linker       = runtimepkg.Linker
	LocalEventer = runtimepkg.LocalEventer
	Emitter      = runtimepkg.Emitter
	Closer       = runtimepkg.Closer
	Remover      = runtimepkg.Remover

	Region           = runtimepkg.Region
	TransitionSetter = runtimepkg.TransitionSetter
	Scheduler        = runtimepkg.Scheduler
	HeadlessRegion   = runtimepkg.HeadlessRegion

	// Dispatchers
	Handler      = dispatchpkg.Handler
	Vent         = dispatchpkg.Vent
	Commands     = dispatchpkg.Commands
	Reqres       = dispatchpkg.Reqres
	Triad        = dispatchpkg.Triad
	Subscription = dispatchpkg.Subscription
	Dispatch     = dispatchpkg.Dispatch
	DispatchKind = dispatchpkg.Kind
	Observer     = dispatchpkg.Observer
	ObserverFunc = dispatchpkg.ObserverFunc

	// Channels
	Channel           = channelpkg.Channel
	ChannelRegistry   = channelpkg.Registry
	ChannelOption     = channelpkg.Option
	ResetObserver     = channelpkg.ResetObserver
	ResetObserverFunc = channelpkg.ResetObserverFunc

	// Handler normalization
	Ref      = actionspkg.Ref
	Hash     = actionspkg.Hash
	Group    = actionspkg.Group
	Actions  = actionspkg.Table
	Chain    = actionspkg.Chain
	Resolver = actionspkg.Resolver

	// Lifecycle
	State            = lifecyclepkg.State
	Flags            = lifecyclepkg.Flags
	Transition       = lifecyclepkg.Transition
	LifecycleTable   = lifecyclepkg.Table
	LifecycleMachine = lifecyclepkg.Machine
	LifecycleContext = runtimepkg.LifecycleContext
	LifecycleHooks   = runtimepkg.LifecycleHooks

	// Bridge
	Bridge       = bridgepkg.Bridge
	BridgeConfig = bridgepkg.Config
	BridgeStats  = bridgepkg.Stats
	Codec        = bridgepkg.Codec
	RetryConfig  = bridgepkg.RetryConfig
	Metadata     = metadatapkg.Metadata

	// Transports
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities

	// Observability
	Metrics         = runtimepkg.Metrics
	MetricsSnapshot = runtimepkg.MetricsSnapshot
	ChannelMetrics  = runtimepkg.ChannelMetrics
	PuppetMetrics   = runtimepkg.PuppetMetrics
	PuppetInfo      = runtimepkg.PuppetInfo
	ChannelInfo     = runtimepkg.ChannelInfo
	BridgeInfo      = runtimepkg.BridgeInfo

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	HandlerError          = errspkg.HandlerError
	PanicError            = errspkg.PanicError
	ConfigValidationError = errspkg.ConfigValidationError
)

var (
	NewApplication    = runtimepkg.NewApplication
	NewPuppet         = runtimepkg.NewPuppet
	ChannelName       = runtimepkg.ChannelName
	ComponentFactory  = runtimepkg.ComponentFactory
	NewHeadlessRegion = runtimepkg.NewHeadlessRegion
	AfterFunc         = runtimepkg.AfterFunc

	NewVent     = dispatchpkg.NewVent
	NewCommands = dispatchpkg.NewCommands
	NewReqres   = dispatchpkg.NewReqres
	NewTriad    = dispatchpkg.NewTriad

	NewChannelRegistry     = channelpkg.NewRegistry
	DefaultChannelRegistry = channelpkg.DefaultRegistry
	GetChannel             = channelpkg.Get
	ResetChannel           = channelpkg.Reset
	WithDispatchObserver   = channelpkg.WithDispatchObserver
	WithResetObserver      = channelpkg.WithResetObserver

	Named          = actionspkg.Named
	Func           = actionspkg.Func
	Normalize      = actionspkg.Normalize
	NormalizeGroup = actionspkg.NormalizeGroup

	DefaultTable = lifecyclepkg.DefaultTable
	StrictTable  = lifecyclepkg.StrictTable
	ParseTable   = lifecyclepkg.ParseTable
	NewMachine   = lifecyclepkg.NewMachine
	FlagsFor     = lifecyclepkg.FlagsFor
	Announcement = lifecyclepkg.Announcement

	// Lifecycle hooks
	LoggingHooks = runtimepkg.LoggingHooks
	MetricsHooks = runtimepkg.MetricsHooks

	NewMetrics = runtimepkg.NewMetrics

	NewBridge   = bridgepkg.New
	CodecByName = bridgepkg.CodecByName

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/puppets/transport/kafka"
	// or all of them via: _ "github.com/drblury/puppets/transport/transports"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	NewTransportRegistry     = transportpkg.NewRegistry
	RegisterTransport        = transportpkg.RegisterWithCapabilities
	BuildTransport           = transportpkg.Build

	LoadConfig       = configpkg.Load
	BindConfig       = configpkg.Bind
	ConfigFromViper  = configpkg.FromViper
	NewEventMetadata = metadatapkg.ForEvent

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode

	ErrPuppetNameRequired   = errspkg.ErrPuppetNameRequired
	ErrApplicationRequired  = errspkg.ErrApplicationRequired
	ErrPieceFactoryRequired = errspkg.ErrPieceFactoryRequired
	ErrChannelRequired      = errspkg.ErrChannelRequired
	ErrTransportRequired    = errspkg.ErrTransportRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrUnhandledCommand     = errspkg.ErrUnhandledCommand
	ErrUnhandledRequest     = errspkg.ErrUnhandledRequest
	ErrUnresolvedHandler    = errspkg.ErrUnresolvedHandler
	ErrDuplicatePiece       = errspkg.ErrDuplicatePiece
	ErrInvalidTransition    = errspkg.ErrInvalidTransition
	ErrUnknownState         = errspkg.ErrUnknownState
	ErrPuppetDestroyed      = runtimepkg.ErrPuppetDestroyed
	ErrBridgeRunning        = bridgepkg.ErrAlreadyRunning

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.NopLogger

	// NewID returns a time sortable ULID.
	NewID = idspkg.New
)

// Lifecycle states.
const (
	Stopped  = lifecyclepkg.Stopped
	Started  = lifecyclepkg.Started
	Ready    = lifecyclepkg.Ready
	Stopping = lifecyclepkg.Stopping
)

// Channel and event names.
const (
	AllEvents       = dispatchpkg.AllEvents
	RootChannel     = channelpkg.RootChannel
	GlobalChannel   = channelpkg.GlobalChannel
	ChannelPrefix   = runtimepkg.ChannelPrefix
	RegionPieceName = runtimepkg.RegionPieceName
	ViewPieceName   = runtimepkg.ViewPieceName
	EnvPrefix       = configpkg.EnvPrefix

	DefaultBridgeTopic = configpkg.DefaultBridgeTopic
)

// Transition names accepted by Options.Transition.
const (
	TransitionPop   = configpkg.TransitionPop
	TransitionFade  = configpkg.TransitionFade
	TransitionSlide = configpkg.TransitionSlide
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// Headless returns a region that only emits the region events, honouring
// transition and duration.
func Headless(transition string, duration time.Duration) Region {
	return runtimepkg.NewHeadlessRegion(transition, duration)
}
