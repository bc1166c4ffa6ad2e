package billing

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultPlanDefinitions are the plans seeded at startup. Limits use three
// value shapes: a number (quota), the literal "unmetered", or a boolean
// (capability flag). A plan not listed here requires manual activation.
var defaultPlanDefinitions = []Plan{
	{
		Name:              PlanFree,
		Description:       "Free tier",
		Limits:            map[string]any{"aiCalls": 100, "collections": 5, "priority": false},
		MonthlyPriceCents: 0,
		DefaultCredits:    1000,
		Features:          pq.StringArray{"requests", "collections"},
	},
	{
		Name:              PlanPro,
		Description:       "Pro tier",
		Limits:            map[string]any{"aiCalls": LimitUnmetered, "collections": LimitUnmetered, "priority": true},
		MonthlyPriceCents: 1500,
		DefaultCredits:    10000,
		Features:          pq.StringArray{"requests", "collections", "ai_advisor", "priority_support"},
	},
	{
		Name:              PlanEnterprise,
		Description:       "Enterprise tier",
		Limits:            map[string]any{"aiCalls": LimitUnmetered, "collections": LimitUnmetered, "priority": true},
		MonthlyPriceCents: 4900,
		DefaultCredits:    50000,
		Features:          pq.StringArray{"requests", "collections", "ai_advisor", "priority_support", "shared_workspaces"},
	},
}

// LimitsFor returns the feature-limit map for a plan name. Unknown plan
// names yield an empty map, so nothing quota-gated is allowed by default.
func LimitsFor(planName string) map[string]any {
	for _, plan := range defaultPlanDefinitions {
		if plan.Name == planName {
			return plan.Limits
		}
	}
	return map[string]any{}
}

// DefaultCreditsFor returns the default credit grant for a plan name,
// or zero for an unknown plan.
func DefaultCreditsFor(planName string) int64 {
	for _, plan := range defaultPlanDefinitions {
		if plan.Name == planName {
			return plan.DefaultCredits
		}
	}
	return 0
}

// Catalog provides access to the seeded plan table.
type Catalog struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewCatalog creates a new plan catalog.
func NewCatalog(db *gorm.DB, logger *zap.Logger) *Catalog {
	return &Catalog{db: db, logger: logger}
}

// Seed inserts the default plans if not already present. Seeding never
// overwrites an existing row, so repeated startups are safe.
func (c *Catalog) Seed(ctx context.Context) error {
	for _, plan := range defaultPlanDefinitions {
		res := c.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&plan)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			c.logger.Info("seeded billing plan", zap.String("plan", plan.Name))
		}
	}
	return nil
}

// ListPlans returns all plans.
func (c *Catalog) ListPlans(ctx context.Context) ([]*Plan, error) {
	var plans []*Plan
	if err := c.db.WithContext(ctx).Order("monthly_price_cents ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// FindByName returns the plan with the given name, or ErrPlanNotFound.
func (c *Catalog) FindByName(ctx context.Context, name string) (*Plan, error) {
	var plan Plan
	err := c.db.WithContext(ctx).First(&plan, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}
