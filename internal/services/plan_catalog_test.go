package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/studyflow-backend/internal/types"
)

type fakePlanLimitRepo struct {
	rows map[string]*types.PlanLimit // feature|plan
}

func newFakePlanLimitRepo() *fakePlanLimitRepo {
	return &fakePlanLimitRepo{rows: make(map[string]*types.PlanLimit)}
}

func (f *fakePlanLimitRepo) GetByFeaturePlan(ctx context.Context, tx *gorm.DB, feature, planType string) (*types.PlanLimit, error) {
	return f.rows[feature+"|"+planType], nil
}

func (f *fakePlanLimitRepo) GetByPlan(ctx context.Context, tx *gorm.DB, planType string) ([]*types.PlanLimit, error) {
	var out []*types.PlanLimit
	for _, row := range f.rows {
		if row.PlanType == planType {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakePlanLimitRepo) Upsert(ctx context.Context, tx *gorm.DB, limits []*types.PlanLimit) error {
	for _, row := range limits {
		f.rows[row.Feature+"|"+row.PlanType] = row
	}
	return nil
}

const testPlansYAML = `features:
  - name: pdf_processing
    limits:
      free: 3
      premium: -1
  - name: youtube_processing
    limits:
      free: 2
      premium: -1
`

func seedTestCatalog(t *testing.T, repo *fakePlanLimitRepo) PlanCatalogService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(testPlansYAML), 0o644); err != nil {
		t.Fatalf("write plans.yaml: %v", err)
	}
	catalog := NewPlanCatalogService(nil, testLogger(t), repo)
	if err := catalog.SeedFromConfig(context.Background(), path); err != nil {
		t.Fatalf("SeedFromConfig: %v", err)
	}
	return catalog
}

func TestPlanCatalogSeedAndResolve(t *testing.T) {
	repo := newFakePlanLimitRepo()
	catalog := seedTestCatalog(t, repo)
	ctx := context.Background()

	cases := []struct {
		name    string
		feature string
		plan    string
		want    int
	}{
		{name: "free_pdf", feature: "pdf_processing", plan: "free", want: 3},
		{name: "premium_pdf_unlimited", feature: "pdf_processing", plan: "premium", want: -1},
		{name: "plan_case_insensitive", feature: "youtube_processing", plan: "FREE", want: 2},
		{name: "unknown_feature_denied", feature: "mind_reading", plan: "free", want: 0},
		{name: "empty_plan_defaults_to_free", feature: "pdf_processing", plan: "", want: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := catalog.DailyLimit(ctx, tc.feature, tc.plan)
			if err != nil {
				t.Fatalf("DailyLimit: %v", err)
			}
			if got != tc.want {
				t.Fatalf("DailyLimit(%q,%q)=%d, want %d", tc.feature, tc.plan, got, tc.want)
			}
		})
	}
}

func TestPlanCatalogDBOverridesDefault(t *testing.T) {
	repo := newFakePlanLimitRepo()
	catalog := seedTestCatalog(t, repo)

	// ops flipped the row after seeding
	repo.rows["pdf_processing|free"].DailyLimit = 10

	got, err := catalog.DailyLimit(context.Background(), "pdf_processing", "free")
	if err != nil {
		t.Fatalf("DailyLimit: %v", err)
	}
	if got != 10 {
		t.Fatalf("DailyLimit=%d, want DB override 10", got)
	}
}

func TestPlanCatalogFeaturesSorted(t *testing.T) {
	catalog := seedTestCatalog(t, newFakePlanLimitRepo())

	features := catalog.Features()
	if len(features) != 2 || features[0] != "pdf_processing" || features[1] != "youtube_processing" {
		t.Fatalf("Features()=%v", features)
	}
}

func TestPlanCatalogRejectsEmptyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte("features: []\n"), 0o644); err != nil {
		t.Fatalf("write plans.yaml: %v", err)
	}
	catalog := NewPlanCatalogService(nil, testLogger(t), newFakePlanLimitRepo())
	if err := catalog.SeedFromConfig(context.Background(), path); err == nil {
		t.Fatal("SeedFromConfig accepted a config with no limits")
	}
}
