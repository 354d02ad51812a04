package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/repos"
	"github.com/yungbote/studyflow-backend/internal/types"
)

// PlanCatalogService resolves the daily limit for a (feature, plan) pair.
// Limits come from configs/plans.yaml, seeded into plan_limit rows so ops can
// override individual cells without a deploy. Features absent from both are
// denied (limit 0).
type PlanCatalogService interface {
	SeedFromConfig(ctx context.Context, path string) error
	DailyLimit(ctx context.Context, feature, planType string) (int, error)
	Features() []string
}

type planCatalogConfig struct {
	Features []struct {
		Name   string         `yaml:"name"`
		Limits map[string]int `yaml:"limits"`
	} `yaml:"features"`
}

type planCatalogService struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.PlanLimitRepo

	defaults map[string]map[string]int // feature -> plan -> limit
}

func NewPlanCatalogService(db *gorm.DB, baseLog *logger.Logger, repo repos.PlanLimitRepo) PlanCatalogService {
	return &planCatalogService{
		db:       db,
		log:      baseLog.With("service", "PlanCatalogService"),
		repo:     repo,
		defaults: map[string]map[string]int{},
	}
}

func (s *planCatalogService) SeedFromConfig(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan config: %w", err)
	}
	var cfg planCatalogConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse plan config: %w", err)
	}

	var rows []*types.PlanLimit
	for _, f := range cfg.Features {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		s.defaults[name] = map[string]int{}
		for plan, limit := range f.Limits {
			plan = strings.TrimSpace(strings.ToLower(plan))
			s.defaults[name][plan] = limit
			rows = append(rows, &types.PlanLimit{
				Feature:    name,
				PlanType:   plan,
				DailyLimit: limit,
			})
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("plan config %q defines no limits", path)
	}

	if err := s.repo.Upsert(ctx, nil, rows); err != nil {
		return fmt.Errorf("seed plan limits: %w", err)
	}
	s.log.Info("Plan limits seeded", "features", len(s.defaults), "rows", len(rows))
	return nil
}

func (s *planCatalogService) DailyLimit(ctx context.Context, feature, planType string) (int, error) {
	planType = strings.TrimSpace(strings.ToLower(planType))
	if planType == "" {
		planType = types.PlanTypeFree
	}

	row, err := s.repo.GetByFeaturePlan(ctx, nil, feature, planType)
	if err != nil {
		return 0, fmt.Errorf("load plan limit: %w", err)
	}
	if row != nil {
		return row.DailyLimit, nil
	}
	if limits, ok := s.defaults[feature]; ok {
		if limit, ok := limits[planType]; ok {
			return limit, nil
		}
	}
	s.log.Warn("No limit configured for feature, denying", "feature", feature, "plan", planType)
	return 0, nil
}

func (s *planCatalogService) Features() []string {
	out := make([]string, 0, len(s.defaults))
	for f := range s.defaults {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
