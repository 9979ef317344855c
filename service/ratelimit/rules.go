package ratelimit

import (
	"sort"
	"strings"
	"time"
)

// Rule 绑定一个路径前缀的限流参数。
type Rule struct {
	Prefix string        `json:"prefix"`
	Window time.Duration `json:"-"`
	Max    int           `json:"max_requests"`
	Burst  int           `json:"burst_size"` // <=0 关闭突发检查
	// WindowSec 仅用于 JSON/env 配置载入。
	WindowSec int `json:"window_seconds"`
}

func (r *Rule) norm() {
	if r.Window <= 0 && r.WindowSec > 0 {
		r.Window = time.Duration(r.WindowSec) * time.Second
	}
	if r.Window <= 0 {
		r.Window = time.Minute
	}
	if r.Max <= 0 {
		r.Max = 60
	}
}

// RuleSet resolves a request path to a rule: longest-prefix match with a
// default fallback; allow-listed prefixes (health/static) skip limiting.
type RuleSet struct {
	def       Rule
	rules     []Rule // sorted by prefix length, longest first
	allowList []string
}

func NewRuleSet(def Rule, rules []Rule, allowList []string) *RuleSet {
	def.norm()
	for i := range rules {
		rules[i].norm()
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})
	return &RuleSet{def: def, rules: rules, allowList: allowList}
}

// Match returns the rule for path and whether limiting applies at all.
func (rs *RuleSet) Match(path string) (Rule, bool) {
	for _, p := range rs.allowList {
		if strings.HasPrefix(path, p) {
			return Rule{}, false
		}
	}
	for _, r := range rs.rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return rs.def, true
}
