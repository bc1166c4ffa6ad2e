package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsFor(t *testing.T) {
	free := LimitsFor(PlanFree)
	assert.Equal(t, 100, free["aiCalls"])
	assert.Equal(t, 5, free["collections"])
	assert.Equal(t, false, free["priority"])

	pro := LimitsFor(PlanPro)
	assert.Equal(t, LimitUnmetered, pro["aiCalls"])
	assert.Equal(t, LimitUnmetered, pro["collections"])
	assert.Equal(t, true, pro["priority"])

	enterprise := LimitsFor(PlanEnterprise)
	assert.Equal(t, LimitUnmetered, enterprise["aiCalls"])

	unknown := LimitsFor("NOPE")
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}

func TestDefaultCreditsFor(t *testing.T) {
	assert.Equal(t, int64(1000), DefaultCreditsFor(PlanFree))
	assert.Equal(t, int64(10000), DefaultCreditsFor(PlanPro))
	assert.Equal(t, int64(50000), DefaultCreditsFor(PlanEnterprise))
	assert.Equal(t, int64(0), DefaultCreditsFor("NOPE"))
}
