package docmerge

import (
	"fmt"
	"os"

	"golang.org/x/text/encoding"

	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/markup"
	"github.com/benjaminschreck/go-docmerge/pkg/docmerge/xslt"
)

// Engine opens templates with a shared configuration.
// Use New() to create a new engine instance.
type Engine struct {
	config    *Config
	logger    *Logger
	processor xslt.Processor
	grammar   *markup.Grammar
	charset   encoding.Encoding
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration. Unset fields take their defaults.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		e.config = NewConfigWithDefaults(config)
	}
}

// WithLogger sets the logger templates write to. The default logs to
// stderr at the configured level.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithXSLTProcessor replaces the processor used by ApplyXSLStyleSheet.
func WithXSLTProcessor(p xslt.Processor) Option {
	return func(e *Engine) {
		e.processor = p
	}
}

// New creates a new engine. Without options it uses DefaultConfig.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	grammar, err := markup.NewGrammar(e.config.NamePattern)
	if err != nil {
		return nil, err
	}
	e.grammar = grammar

	charset, err := e.config.legacyEncoding()
	if err != nil {
		return nil, err
	}
	e.charset = charset

	if e.logger == nil {
		e.logger = NewLoggerFromConfig(os.Stderr, e.config)
	}
	if e.processor == nil {
		logger := e.logger
		e.processor = xslt.Native{OnMessage: func(msg string) {
			logger.WithField("source", "xsl:message").Info("%s", msg)
		}}
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *Logger {
	return e.logger
}

// Open loads the template at path. The source file is copied first and is
// never modified.
func Open(path string, opts ...Option) (*Template, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return e.Open(path)
}
