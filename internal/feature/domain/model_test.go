package domain

import (
	"testing"

	subscriptiondomain "github.com/smallbiznis/gatekeeper/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func TestParseCode(t *testing.T) {
	code, err := ParseCode("  API_Access ")
	assert.NoError(t, err)
	assert.Equal(t, CodeAPIAccess, code)

	_, err = ParseCode("teleport")
	assert.ErrorIs(t, err, ErrUnknownFeature)

	_, err = ParseCode("")
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestAllCodesIsClosedSet(t *testing.T) {
	codes := AllCodes()
	assert.Len(t, codes, 14)

	seen := make(map[Code]bool, len(codes))
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true

		parsed, err := ParseCode(string(code))
		assert.NoError(t, err)
		assert.Equal(t, code, parsed)
	}
}

func TestForTier(t *testing.T) {
	freeLimit := int64(100)
	proLimit := int64(5000)
	gate := FeatureGate{
		FreeAvailable:       true,
		FreeLimit:           &freeLimit,
		ProAvailable:        true,
		ProLimit:            &proLimit,
		EnterpriseAvailable: true,
	}

	free := gate.ForTier(subscriptiondomain.TierFree)
	assert.True(t, free.Available)
	assert.Equal(t, int64(100), *free.Limit)

	pro := gate.ForTier(subscriptiondomain.TierPro)
	assert.True(t, pro.Available)
	assert.Equal(t, int64(5000), *pro.Limit)

	enterprise := gate.ForTier(subscriptiondomain.TierEnterprise)
	assert.True(t, enterprise.Available)
	assert.Nil(t, enterprise.Limit)
}

func TestForTierUnknownTierUnavailable(t *testing.T) {
	gate := FeatureGate{
		FreeAvailable:       true,
		ProAvailable:        true,
		EnterpriseAvailable: true,
	}

	grant := gate.ForTier(subscriptiondomain.Tier("platinum"))
	assert.False(t, grant.Available)
	assert.Nil(t, grant.Limit)
}
