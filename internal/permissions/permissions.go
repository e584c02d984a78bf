// Package permissions grants permissions to users based on their ID token
// claims.
package permissions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"auth-client/internal/auth"
	"auth-client/internal/logger"

	"gopkg.in/yaml.v3"
)

// Rule grants Permissions when Claim equals Value, or contains it when the
// claim is a list.
type Rule struct {
	Claim       string   `yaml:"claim"`
	Value       string   `yaml:"value"`
	Permissions []string `yaml:"permissions"`
}

type Rules struct {
	Rules []Rule `yaml:"rules"`
}

// Load reads a rules file.
func Load(path string) (Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read permission rules: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return Rules{}, fmt.Errorf("parse permission rules: %w", err)
	}
	for i, rule := range r.Rules {
		if rule.Claim == "" || len(rule.Permissions) == 0 {
			return Rules{}, fmt.Errorf("permission rule %d: claim and permissions are required", i)
		}
	}
	return r, nil
}

// Match returns the sorted, de-duplicated permissions claims qualify for.
func (r Rules) Match(claims auth.Claims) []string {
	set := make(map[string]bool)
	for _, rule := range r.Rules {
		if !matches(claims, rule) {
			continue
		}
		for _, p := range rule.Permissions {
			set[p] = true
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func matches(claims auth.Claims, rule Rule) bool {
	for _, v := range claims.Strings(rule.Claim) {
		if v == rule.Value {
			return true
		}
	}
	return false
}

type Granter interface {
	GrantPermissions(ctx context.Context, userID string, perms []string) error
}

// Assigner grants matching permissions through a Granter.
type Assigner struct {
	rules   Rules
	granter Granter
}

func NewAssigner(rules Rules, granter Granter) *Assigner {
	return &Assigner{rules: rules, granter: granter}
}

func (a *Assigner) Assign(ctx context.Context, userID string, claims auth.Claims) error {
	if userID == "" {
		return errors.New("permissions: missing user id")
	}
	perms := a.rules.Match(claims)
	if len(perms) == 0 {
		return nil
	}
	if err := a.granter.GrantPermissions(ctx, userID, perms); err != nil {
		return fmt.Errorf("grant permissions: %w", err)
	}
	logger.Info("permissions assigned", map[string]any{
		"user_id":     userID,
		"permissions": perms,
	})
	return nil
}

// Noop is used when no rules file is configured.
type Noop struct{}

func (Noop) Assign(context.Context, string, auth.Claims) error { return nil }
