// Package config holds the VICW configuration surface enumerated in spec §6,
// assembled via the teacher's functional-options pattern (see
// pkg/runtime/runtime.go in the teacher repo) and loadable from environment
// variables via github.com/joho/godotenv in cmd/vicw.
package config

import (
	"errors"
	"time"
)

// Option configures a Config during construction.
type Option func(*Config)

// Config is the full VICW configuration surface. Every field has a default,
// set by New before the options run; a field an option sets to its zero
// value keeps that zero value.
type Config struct {
	// Context manager / pressure control.
	MaxContextTokens int
	ThetaTrigger     float64
	ThetaTarget      float64
	ThetaResume      float64

	// Offload queue.
	QueueMaxSize int

	// Retrieval coordinator.
	TopKSemantic  int
	TopKRelational int
	SimMinimum    float64

	// Embedding.
	EmbeddingDim int

	// Echo guard.
	EchoRingSize        int
	EchoSimThreshold    float64
	MaxRegenerationTries int
	EchoGuardEnabled    bool
	StripRAGOnFinalTry  bool

	// State machine.
	StateCapGoal     int
	StateCapTask     int
	StateCapDecision int
	StateCapFact     int
	KDone            int
	BoredomThreshold int
	StateTrackingOn  bool
	BoredomOn        bool

	// Summarization.
	SummaryLeadSentences int
	SummaryTailSentences int
	SummaryMaxTokens     int

	// Cold path.
	ColdPathIdleInterval time.Duration
	ColdPathBatchSize    int
	ColdPathWorkers      int

	// LLM client.
	LLMTimeout    time.Duration
	LLMMaxRetries int
	LLMModel      string
	LLMBaseURL    string
	LLMAPIKey     string
}

func defaults() *Config {
	return &Config{
		MaxContextTokens: 4096,
		ThetaTrigger:     0.80,
		ThetaTarget:      0.60,
		ThetaResume:      0.70,

		QueueMaxSize: 100,

		TopKSemantic:   2,
		TopKRelational: 5,
		SimMinimum:     0.4,

		EmbeddingDim: 384,

		EchoRingSize:         10,
		EchoSimThreshold:     0.95,
		MaxRegenerationTries: 3,
		EchoGuardEnabled:     true,
		StripRAGOnFinalTry:   true,

		StateCapGoal:     2,
		StateCapTask:     3,
		StateCapDecision: 2,
		StateCapFact:     3,
		KDone:            3,
		BoredomThreshold: 5,
		StateTrackingOn:  true,
		BoredomOn:        true,

		SummaryLeadSentences: 2,
		SummaryTailSentences: 1,
		SummaryMaxTokens:     256,

		ColdPathIdleInterval: 100 * time.Millisecond,
		ColdPathBatchSize:    3,
		ColdPathWorkers:      4,

		LLMTimeout:    60 * time.Second,
		LLMMaxRetries: 2,
		LLMModel:      "gpt-4o-mini",
	}
}

// New builds a Config from defaults plus the given options.
func New(opts ...Option) (*Config, error) {
	c := defaults()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.MaxContextTokens <= 0 {
		return errors.New("config: max context tokens must be positive")
	}
	if !(0 < c.ThetaTarget && c.ThetaTarget < c.ThetaResume && c.ThetaResume < c.ThetaTrigger && c.ThetaTrigger <= 1) {
		return errors.New("config: thresholds must satisfy 0 < theta_target < theta_resume < theta_trigger <= 1")
	}
	if c.QueueMaxSize <= 0 {
		return errors.New("config: queue max size must be positive")
	}
	if c.EmbeddingDim <= 0 {
		return errors.New("config: embedding dimension must be positive")
	}
	if c.EchoRingSize <= 0 {
		return errors.New("config: echo ring size must be positive")
	}
	if c.MaxRegenerationTries <= 0 {
		return errors.New("config: max regeneration tries must be positive")
	}
	return nil
}

// WithMaxContextTokens overrides T_max.
func WithMaxContextTokens(n int) Option { return func(c *Config) { c.MaxContextTokens = n } }

// WithThresholds overrides the three hysteresis thresholds.
func WithThresholds(trigger, target, resume float64) Option {
	return func(c *Config) {
		c.ThetaTrigger = trigger
		c.ThetaTarget = target
		c.ThetaResume = resume
	}
}

// WithQueueMaxSize overrides Q_max.
func WithQueueMaxSize(n int) Option { return func(c *Config) { c.QueueMaxSize = n } }

// WithRetrievalParams overrides k_sem, k_rel, and sigma_min.
func WithRetrievalParams(kSem, kRel int, sigmaMin float64) Option {
	return func(c *Config) {
		c.TopKSemantic = kSem
		c.TopKRelational = kRel
		c.SimMinimum = sigmaMin
	}
}

// WithEmbeddingDim overrides d.
func WithEmbeddingDim(d int) Option { return func(c *Config) { c.EmbeddingDim = d } }

// WithEchoGuard overrides H, sigma_echo, R_max, and the enable/strip flags.
func WithEchoGuard(h int, sigmaEcho float64, rMax int, enabled, stripOnFinal bool) Option {
	return func(c *Config) {
		c.EchoRingSize = h
		c.EchoSimThreshold = sigmaEcho
		c.MaxRegenerationTries = rMax
		c.EchoGuardEnabled = enabled
		c.StripRAGOnFinalTry = stripOnFinal
	}
}

// WithStateCaps overrides per-type state injection caps and k_done.
func WithStateCaps(goal, task, decision, fact, kDone int) Option {
	return func(c *Config) {
		c.StateCapGoal = goal
		c.StateCapTask = task
		c.StateCapDecision = decision
		c.StateCapFact = fact
		c.KDone = kDone
	}
}

// WithBoredom overrides B_thresh and the boredom on/off flag.
func WithBoredom(threshold int, enabled bool) Option {
	return func(c *Config) {
		c.BoredomThreshold = threshold
		c.BoredomOn = enabled
	}
}

// WithStateTracking toggles the state machine entirely.
func WithStateTracking(enabled bool) Option { return func(c *Config) { c.StateTrackingOn = enabled } }

// WithSummarization overrides s_lead, s_tail, and L_sum.
func WithSummarization(lead, tail, maxTokens int) Option {
	return func(c *Config) {
		c.SummaryLeadSentences = lead
		c.SummaryTailSentences = tail
		c.SummaryMaxTokens = maxTokens
	}
}

// WithColdPath overrides t_idle, batch size, and worker pool size.
func WithColdPath(idle time.Duration, batchSize, workers int) Option {
	return func(c *Config) {
		c.ColdPathIdleInterval = idle
		c.ColdPathBatchSize = batchSize
		c.ColdPathWorkers = workers
	}
}

// WithLLM overrides t_llm, r_llm, model name, base URL, and API key.
func WithLLM(timeout time.Duration, maxRetries int, model, baseURL, apiKey string) Option {
	return func(c *Config) {
		c.LLMTimeout = timeout
		c.LLMMaxRetries = maxRetries
		c.LLMModel = model
		c.LLMBaseURL = baseURL
		c.LLMAPIKey = apiKey
	}
}
