package domain

import (
	"fmt"
	"time"
)

// FusionWeights are the per-source weights of the weighted-sum fusion.
type FusionWeights struct {
	Lexical float64 `mapstructure:"lexical" json:"lexical"`
	Vector  float64 `mapstructure:"vector" json:"vector"`
}

// FusionConfig tunes the retrieval fusion engine.
type FusionConfig struct {
	LexicalWeighted FusionWeights `mapstructure:"lexical_weighted"`
	VectorWeighted  FusionWeights `mapstructure:"vector_weighted"`
	Balanced        FusionWeights `mapstructure:"balanced"`
	LexicalTimeout  time.Duration `mapstructure:"lexical_timeout"`
	VectorTimeout   time.Duration `mapstructure:"vector_timeout"`
	// OverfetchFactor multiplies topK to size the pool handed to later stages.
	OverfetchFactor int `mapstructure:"overfetch_factor"`
}

// WeightsFor returns the weights for a router mode.
func (c FusionConfig) WeightsFor(mode RouterMode) FusionWeights {
	switch mode {
	case RouterLexicalWeighted:
		return c.LexicalWeighted
	case RouterVectorWeighted:
		return c.VectorWeighted
	case RouterLexicalOnly:
		return FusionWeights{Lexical: 1}
	case RouterVectorOnly:
		return FusionWeights{Vector: 1}
	default:
		return c.Balanced
	}
}

// GraphConfig tunes the graph bias stage.
type GraphConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Budget         time.Duration `mapstructure:"budget"`
	MaxHops        int           `mapstructure:"max_hops"`
	HopDecay       float64       `mapstructure:"hop_decay"`
	BoostWeight    float64       `mapstructure:"boost_weight"`
	LinkScoreCap   float64       `mapstructure:"link_score_cap"`
	SeedCandidates int           `mapstructure:"seed_candidates"`
	// EdgeAllowList maps a query intent to the relationship types worth following.
	EdgeAllowList map[string][]string `mapstructure:"edge_allow_list"`
}

// EdgeTypesFor returns the allow-listed edge types for intent, falling back to general.
func (c GraphConfig) EdgeTypesFor(intent QueryIntent) []string {
	if types, ok := c.EdgeAllowList[string(intent)]; ok && len(types) > 0 {
		return types
	}
	return c.EdgeAllowList[string(IntentGeneral)]
}

// RerankConfig tunes the optional rerank stage.
type RerankConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SkipThreshold skips reranking when the top fused score is at or above it.
	SkipThreshold float64       `mapstructure:"skip_threshold"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// AnswerConfig tunes the answer stream.
type AnswerConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	PromptVersion     string        `mapstructure:"prompt_version"`
}

// TenantConfig is an immutable per-tenant snapshot. Never mutate a published value.
type TenantConfig struct {
	TenantID        string       `mapstructure:"tenant_id"`
	DefaultTopK     int          `mapstructure:"default_top_k"`
	MaxTopK         int          `mapstructure:"max_top_k"`
	VectorNamespace string       `mapstructure:"vector_namespace"`
	Fusion          FusionConfig `mapstructure:"fusion"`
	Graph           GraphConfig  `mapstructure:"graph"`
	Rerank          RerankConfig `mapstructure:"rerank"`
	Answer          AnswerConfig `mapstructure:"answer"`
}

// TenantConfigProvider returns the current snapshot for a tenant.
type TenantConfigProvider interface {
	ForTenant(tenantID string) *TenantConfig
}

// DefaultTenantConfig returns the defaults used for tenants without overrides.
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{
		DefaultTopK: 10,
		MaxTopK:     50,
		Fusion: FusionConfig{
			LexicalWeighted: FusionWeights{Lexical: 0.7, Vector: 0.3},
			VectorWeighted:  FusionWeights{Lexical: 0.3, Vector: 0.7},
			Balanced:        FusionWeights{Lexical: 0.5, Vector: 0.5},
			LexicalTimeout:  800 * time.Millisecond,
			VectorTimeout:   1200 * time.Millisecond,
			OverfetchFactor: 3,
		},
		Graph: GraphConfig{
			Enabled:        true,
			Budget:         20 * time.Millisecond,
			MaxHops:        2,
			HopDecay:       0.5,
			BoostWeight:    0.2,
			LinkScoreCap:   1.0,
			SeedCandidates: 5,
			EdgeAllowList: map[string][]string{
				string(IntentOwnership):  {"OWNED_BY", "MAINTAINED_BY", "MEMBER_OF"},
				string(IntentAuthorship): {"AUTHORED_BY", "COMMITTED_BY", "REVIEWED_BY"},
				string(IntentGeneral):    {"OWNED_BY", "AUTHORED_BY", "DEPENDS_ON", "MENTIONS"},
			},
		},
		Rerank: RerankConfig{
			Enabled:       true,
			SkipThreshold: 0.9,
			Timeout:       2 * time.Second,
		},
		Answer: AnswerConfig{
			HeartbeatInterval: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxTokens:         1024,
			PromptVersion:     "hybrid-v1",
		},
	}
}

// Namespace returns the vector namespace, derived from the tenant id when unset.
func (c *TenantConfig) Namespace() string {
	if c.VectorNamespace != "" {
		return c.VectorNamespace
	}
	return "tenant_" + c.TenantID
}

// Validate checks that the values are usable.
func (c *TenantConfig) Validate() error {
	if c.DefaultTopK <= 0 {
		return fmt.Errorf("default_top_k must be positive, got %d", c.DefaultTopK)
	}
	if c.MaxTopK < c.DefaultTopK {
		return fmt.Errorf("max_top_k (%d) must be >= default_top_k (%d)", c.MaxTopK, c.DefaultTopK)
	}
	if err := c.Fusion.validate(); err != nil {
		return fmt.Errorf("fusion config invalid: %w", err)
	}
	if err := c.Graph.validate(); err != nil {
		return fmt.Errorf("graph config invalid: %w", err)
	}
	if c.Rerank.Enabled {
		if c.Rerank.Timeout <= 0 {
			return fmt.Errorf("rerank timeout must be positive, got %v", c.Rerank.Timeout)
		}
		if c.Rerank.SkipThreshold < 0 || c.Rerank.SkipThreshold > 1 {
			return fmt.Errorf("rerank skip_threshold must be in [0, 1], got %f", c.Rerank.SkipThreshold)
		}
	}
	if c.Answer.HeartbeatInterval <= 0 || c.Answer.IdleTimeout <= 0 {
		return fmt.Errorf("answer heartbeat_interval and idle_timeout must be positive")
	}
	return nil
}

func (c FusionConfig) validate() error {
	for name, w := range map[string]FusionWeights{
		"lexical_weighted": c.LexicalWeighted,
		"vector_weighted":  c.VectorWeighted,
		"balanced":         c.Balanced,
	} {
		if w.Lexical < 0 || w.Vector < 0 || w.Lexical+w.Vector == 0 {
			return fmt.Errorf("%s weights must be non-negative and not both zero, got %+v", name, w)
		}
	}
	if c.LexicalTimeout <= 0 || c.VectorTimeout <= 0 {
		return fmt.Errorf("source timeouts must be positive")
	}
	if c.OverfetchFactor < 1 {
		return fmt.Errorf("overfetch_factor must be >= 1, got %d", c.OverfetchFactor)
	}
	return nil
}

func (c GraphConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Budget <= 0 {
		return fmt.Errorf("budget must be positive, got %v", c.Budget)
	}
	if c.MaxHops < 1 || c.MaxHops > 2 {
		return fmt.Errorf("max_hops must be 1 or 2, got %d", c.MaxHops)
	}
	if c.HopDecay <= 0 || c.HopDecay > 1 {
		return fmt.Errorf("hop_decay must be in (0, 1], got %f", c.HopDecay)
	}
	if c.BoostWeight < 0 || c.LinkScoreCap <= 0 {
		return fmt.Errorf("boost_weight must be >= 0 and link_score_cap > 0")
	}
	return nil
}
