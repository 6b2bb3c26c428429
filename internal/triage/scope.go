package triage

import (
	"fmt"
	"regexp"

	"github.com/msageha/baton/internal/model"
)

// DefaultPatterns lists the topics an automatic adaptation may never touch.
var DefaultPatterns = []model.PatternConfig{
	{Name: "database-migration", Regex: `(schema|database|db)[\s_-]*(migration|change)|\bmigrations?\b|alter\s+table|drop\s+(table|column|database)`},
	{Name: "breaking-api-change", Regex: `breaking[\s_-]*(api|change)|remov(e|es|ed|ing)\s+(the\s+)?(public\s+)?(api|endpoint)|api\s+(removal|rename)`},
	{Name: "auth-change", Regex: `\bauth(entication|orization|n|z)?\b|\boauth|\brbac\b|\bpermissions?\b`},
	{Name: "security-config", Regex: `security[\s_-]*(config|configuration|setting|polic)|\bcors\b|\btls\b|\bsecrets?\b|credentials?`},
	{Name: "ci-cd-pipeline", Regex: `\bci\s*/\s*cd\b|\bcicd\b|\bpipeline\b|github[\s_-]*actions|\.github/workflows|jenkinsfile`},
}

type scopePattern struct {
	name string
	re   *regexp.Regexp
}

// ScopeChecker matches free text against destructive-topic patterns.
type ScopeChecker struct {
	patterns []scopePattern
}

// NewScopeChecker compiles patterns case-insensitively. An empty list means
// DefaultPatterns.
func NewScopeChecker(patterns []model.PatternConfig) (*ScopeChecker, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	c := &ScopeChecker{}
	for i, p := range patterns {
		re, err := regexp.Compile("(?i)" + p.Regex)
		if err != nil {
			return nil, fmt.Errorf("scope pattern[%d] %q: %w", i, p.Name, err)
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("pattern[%d]", i)
		}
		c.patterns = append(c.patterns, scopePattern{name: name, re: re})
	}
	return c, nil
}

// DefaultScopeChecker uses DefaultPatterns.
func DefaultScopeChecker() *ScopeChecker {
	c, err := NewScopeChecker(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// Match returns the name of the first pattern hit by any text.
func (c *ScopeChecker) Match(texts ...string) (string, bool) {
	for _, p := range c.patterns {
		for _, t := range texts {
			if t != "" && p.re.MatchString(t) {
				return p.name, true
			}
		}
	}
	return "", false
}

// CheckAdaptation scans the adaptation reason and the proposed item.
func (c *ScopeChecker) CheckAdaptation(a *model.Adaptation) (string, bool) {
	if a == nil {
		return "", false
	}
	texts := []string{a.Reason}
	if a.NewTodo != nil {
		texts = append(texts, a.NewTodo.Title)
		texts = append(texts, a.NewTodo.Steps...)
	}
	return c.Match(texts...)
}
