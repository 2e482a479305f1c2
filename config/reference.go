package config

import (
	"context"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"signalHub/internal/domain"
	"signalHub/internal/entitlement"
)

// Reference is the static reference configuration: tier catalogue, priority map,
// trading accounts and strategy bindings.
type Reference struct {
	Tiers       []TierSpec        `yaml:"tiers" validate:"required,min=1,dive"`
	PriorityMap map[string]string `yaml:"priority_map" validate:"required,dive,keys,oneof=LOW MEDIUM HIGH VIP EXCLUSIVE,endkeys,required"`
	Accounts    []AccountSpec     `yaml:"accounts" validate:"dive"`
	Bindings    []BindingSpec     `yaml:"bindings" validate:"dive"`
}

// TierSpec is one subscription tier.
type TierSpec struct {
	Slug                     string   `yaml:"slug" validate:"required"`
	Name                     string   `yaml:"name" validate:"required"`
	Rank                     int      `yaml:"rank" validate:"gte=0"`
	AllowedPriorities        []string `yaml:"allowed_priorities" validate:"required,min=1,dive,oneof=LOW MEDIUM HIGH VIP EXCLUSIVE"`
	DelayMinutes             int      `yaml:"delay_minutes" validate:"gte=0"`
	MaxSignalsPerDay         *int     `yaml:"max_signals_per_day" validate:"omitempty,gte=1"` // Omit for unlimited
	IncludesSLTP             bool     `yaml:"includes_sl_tp"`
	IncludesAnalysis         bool     `yaml:"includes_analysis"`
	IncludesExclusiveChannel bool     `yaml:"includes_exclusive_channel"`
	ChannelID                string   `yaml:"channel_id"`
}

// AccountSpec holds venue credentials. Values may reference environment variables as ${NAME}.
type AccountSpec struct {
	ID        string `yaml:"id" validate:"required"`
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// BindingSpec ties an account to a strategy and symbol universe.
type BindingSpec struct {
	ID               int64    `yaml:"id" validate:"required,gt=0"`
	AccountID        string   `yaml:"account_id" validate:"required"`
	Strategy         string   `yaml:"strategy" default:"momentum"`
	Timeframe        string   `yaml:"timeframe" default:"1h" validate:"oneof=1m 5m 15m 30m 1h 4h 1d"`
	RiskLevel        string   `yaml:"risk_level" default:"medium" validate:"oneof=low medium high aggressive"`
	Symbols          []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	Enabled          *bool    `yaml:"enabled" default:"true"`
	MaxOpenPositions int      `yaml:"max_open_positions" default:"3" validate:"gte=1"`
	AutoTrade        bool     `yaml:"auto_trade"`
}

// LoadReference reads, expands, defaults and validates the reference file.
func LoadReference(path string) (*Reference, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference config: %w", err)
	}
	return ParseReference(b)
}

// ParseReference parses a reference document held in memory.
func ParseReference(b []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &ref); err != nil {
		return nil, fmt.Errorf("parse reference config: %w", err)
	}
	for i := range ref.Bindings {
		if err := defaults.Set(&ref.Bindings[i]); err != nil {
			return nil, fmt.Errorf("apply binding defaults: %w", err)
		}
	}
	if err := validator.New().Struct(&ref); err != nil {
		return nil, fmt.Errorf("validate reference config: %w", err)
	}
	if err := ref.crossCheck(); err != nil {
		return nil, fmt.Errorf("validate reference config: %w", err)
	}
	if _, err := ref.Table(); err != nil {
		return nil, fmt.Errorf("validate reference config: %w", err)
	}
	return &ref, nil
}

func (r *Reference) crossCheck() error {
	accounts := make(map[string]bool, len(r.Accounts))
	for _, a := range r.Accounts {
		if accounts[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		accounts[a.ID] = true
	}
	bindings := make(map[int64]bool, len(r.Bindings))
	for _, b := range r.Bindings {
		if bindings[b.ID] {
			return fmt.Errorf("duplicate binding id %d", b.ID)
		}
		bindings[b.ID] = true
		if !accounts[b.AccountID] {
			return fmt.Errorf("binding %d references unknown account %q", b.ID, b.AccountID)
		}
	}
	return nil
}

// Table builds the entitlement table, enforcing the tier superset rule.
func (r *Reference) Table() (*entitlement.Table, error) {
	tiers := make([]domain.Tier, 0, len(r.Tiers))
	for _, t := range r.Tiers {
		priorities := make([]domain.Priority, 0, len(t.AllowedPriorities))
		for _, p := range t.AllowedPriorities {
			priorities = append(priorities, domain.Priority(p))
		}
		tiers = append(tiers, domain.Tier{
			Slug:                     t.Slug,
			Name:                     t.Name,
			Rank:                     t.Rank,
			AllowedPriorities:        priorities,
			DelayMinutes:             t.DelayMinutes,
			MaxSignalsPerDay:         t.MaxSignalsPerDay,
			IncludesSLTP:             t.IncludesSLTP,
			IncludesAnalysis:         t.IncludesAnalysis,
			IncludesExclusiveChannel: t.IncludesExclusiveChannel,
			ChannelID:                t.ChannelID,
		})
	}
	priorityMap := make(map[domain.Priority]string, len(r.PriorityMap))
	for p, slug := range r.PriorityMap {
		priorityMap[domain.Priority(p)] = slug
	}
	return entitlement.NewTable(tiers, priorityMap)
}

// StrategyBindings converts the binding specs to domain bindings.
func (r *Reference) StrategyBindings() []domain.StrategyBinding {
	out := make([]domain.StrategyBinding, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		out = append(out, domain.StrategyBinding{
			ID:               b.ID,
			AccountID:        b.AccountID,
			Strategy:         b.Strategy,
			Timeframe:        b.Timeframe,
			RiskLevel:        domain.RiskLevel(b.RiskLevel),
			Symbols:          append([]string(nil), b.Symbols...),
			Enabled:          b.Enabled == nil || *b.Enabled,
			MaxOpenPositions: b.MaxOpenPositions,
			AutoTrade:        b.AutoTrade,
		})
	}
	return out
}

// StaticBindings serves bindings loaded at startup.
type StaticBindings []domain.StrategyBinding

// EnabledBindings returns the enabled bindings in file order.
func (s StaticBindings) EnabledBindings(ctx context.Context) ([]domain.StrategyBinding, error) {
	out := make([]domain.StrategyBinding, 0, len(s))
	for _, b := range s {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out, nil
}
