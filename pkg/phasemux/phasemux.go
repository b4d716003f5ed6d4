// Package phasemux provides the public API for building phase-ordered HTTP
// applications. This is the stable API for external consumers.
package phasemux

import (
	"github.com/tjfontaine/phasemux/internal/app"
	"github.com/tjfontaine/phasemux/internal/catalog"
	"github.com/tjfontaine/phasemux/internal/config"
	"github.com/tjfontaine/phasemux/internal/phase"
	"github.com/tjfontaine/phasemux/internal/pipeline"
	"github.com/tjfontaine/phasemux/internal/telemetry"
)

// App is an HTTP application whose handlers run in phase order.
// See internal/app.App for full documentation.
type App = app.App

// Option is a functional option for configuring an App.
type Option = app.Option

// New creates a new App with the given options.
// Example:
//
//	a, err := phasemux.New(
//	    phasemux.WithLogger(logger),
//	    phasemux.WithPhases("initial", "metrics", "routes", "final"),
//	)
var New = app.New

// Configuration options
var (
	WithLogger          = app.WithLogger
	WithPhases          = app.WithPhases
	WithInstrumentation = app.WithInstrumentation
	WithCatalog         = app.WithCatalog
)

// Handler shapes
type (
	Context          = pipeline.Context
	NextFunc         = pipeline.NextFunc
	Handler          = pipeline.Handler
	ErrorHandler     = pipeline.ErrorHandler
	HandlerFunc      = pipeline.HandlerFunc
	ErrorHandlerFunc = pipeline.ErrorHandlerFunc
	Layer            = pipeline.Layer
)

// Errors
type (
	HTTPError         = pipeline.HTTPError
	PanicError        = pipeline.PanicError
	ConflictError     = phase.ConflictError
	NotInstalledError = catalog.NotInstalledError
)

var (
	NewHTTPError = pipeline.NewHTTPError
	StatusOf     = pipeline.StatusOf

	ErrMissingPhase       = app.ErrMissingPhase
	ErrUnknownPhase       = phase.ErrUnknownPhase
	ErrInvalidPhaseName   = phase.ErrInvalidPhaseName
	ErrDuplicatePhase     = phase.ErrDuplicatePhase
	ErrUnsupportedHandler = pipeline.ErrUnsupportedHandler
	ErrUnknownMiddleware  = catalog.ErrUnknownMiddleware
	ErrNextAfterReturn    = pipeline.ErrNextAfterReturn
	ErrNextCalledTwice    = pipeline.ErrNextCalledTwice
)

// Standard net/http adapters
var (
	FromMiddleware = pipeline.FromMiddleware
	Terminal       = pipeline.Terminal
)

// Default phases, in dispatch order.
const (
	Initial    = phase.Initial
	Session    = phase.Session
	Auth       = phase.Auth
	ParsePhase = phase.ParsePhase
	Routes     = phase.Routes
	Files      = phase.Files
	Final      = phase.Final
)

// Middleware catalog
type (
	Catalog = catalog.Catalog
	Factory = catalog.Factory
)

var (
	NewCatalog     = catalog.New
	DefaultCatalog = catalog.Default
	NotInstalled   = catalog.NotInstalled
)

// Configuration
type (
	Config           = config.Config
	MiddlewareConfig = config.Middleware
)

var LoadConfig = config.Load

// Instrument returns an instrumenter that records a span per handler call,
// for use with WithInstrumentation.
var Instrument = telemetry.Instrument
