package split

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henryq1230/easydeals-backend/apperr"
	"github.com/henryq1230/easydeals-backend/model"
)

func testConfig() Config {
	return Config{
		DefaultPlatformRate:    decimal.RequireFromString("0.15"),
		DriverCutRate:          decimal.RequireFromString("0.80"),
		PlatformSubmerchantKey: "sub_platform",
	}
}

func verifiedBusiness() *Participant {
	return &Participant{
		UserID:         10,
		SubmerchantKey: "sub_business",
		CommissionRate: decimal.RequireFromString("0.15"),
		Active:         true,
		Verified:       true,
	}
}

func activeDriver() *Participant {
	return &Participant{
		UserID:         20,
		SubmerchantKey: "sub_driver",
		CommissionRate: decimal.RequireFromString("0.15"),
		Active:         true,
		Verified:       true,
	}
}

func TestCompute_BusinessNoDriver(t *testing.T) {
	entries, err := Compute(testConfig(), Input{
		OrderNumber: "AB12CD34",
		Total:       decimal.RequireFromString("26.40"),
		DeliveryFee: decimal.RequireFromString("5.00"),
		Business:    verifiedBusiness(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, model.CommissionTypeBusiness, entries[0].Type)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("22.44")), "business=%s", entries[0].Amount)

	assert.Equal(t, model.CommissionTypePlatform, entries[1].Type)
	assert.Equal(t, "sub_platform", entries[1].SubmerchantKey)
	assert.True(t, entries[1].Amount.Equal(decimal.RequireFromString("3.96")), "platform=%s", entries[1].Amount)

	assert.True(t, Sum(entries).Equal(decimal.RequireFromString("26.40")))
}

func TestCompute_DriverTakesCutOfDeliveryFee(t *testing.T) {
	entries, err := Compute(testConfig(), Input{
		OrderNumber: "AB12CD34",
		Total:       decimal.RequireFromString("26.40"),
		DeliveryFee: decimal.RequireFromString("5.00"),
		Business:    verifiedBusiness(),
		Driver:      activeDriver(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, model.CommissionTypeDriver, entries[1].Type)
	assert.True(t, entries[1].Amount.Equal(decimal.RequireFromString("4.00")), "driver=%s", entries[1].Amount)

	// Platform entry is last and reduced by the driver share.
	last := entries[len(entries)-1]
	assert.Equal(t, model.CommissionTypePlatform, last.Type)
	assert.True(t, last.Amount.Equal(decimal.RequireFromString("-0.04")), "platform=%s", last.Amount)

	assert.True(t, Sum(entries).Equal(decimal.RequireFromString("26.40")))
}

func TestCompute_UnverifiedBusinessFallsBackToPlatform(t *testing.T) {
	b := verifiedBusiness()
	b.Verified = false

	entries, err := Compute(testConfig(), Input{
		OrderNumber: "AB12CD34",
		Total:       decimal.RequireFromString("26.40"),
		DeliveryFee: decimal.RequireFromString("5.00"),
		Business:    b,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, model.CommissionTypePlatform, entries[0].Type)
	assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("26.40")))
}

func TestCompute_InactiveDriverGetsNoEntry(t *testing.T) {
	d := activeDriver()
	d.Active = false

	entries, err := Compute(testConfig(), Input{
		OrderNumber: "AB12CD34",
		Total:       decimal.RequireFromString("26.40"),
		DeliveryFee: decimal.RequireFromString("5.00"),
		Business:    verifiedBusiness(),
		Driver:      d,
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, Sum(entries).Equal(decimal.RequireFromString("26.40")))
}

func TestCompute_ZeroDeliveryFeeSkipsDriver(t *testing.T) {
	entries, err := Compute(testConfig(), Input{
		OrderNumber: "AB12CD34",
		Total:       decimal.RequireFromString("21.40"),
		DeliveryFee: decimal.Zero,
		Business:    verifiedBusiness(),
		Driver:      activeDriver(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, Sum(entries).Equal(decimal.RequireFromString("21.40")))
}

func TestCompute_MissingPlatformKey(t *testing.T) {
	cfg := testConfig()
	cfg.PlatformSubmerchantKey = ""

	_, err := Compute(cfg, Input{Total: decimal.RequireFromString("10.00")})
	require.Error(t, err)
	assert.Equal(t, apperr.Configuration, apperr.KindOf(err))
}

// Entries must sum to exactly the payment amount for every participant
// configuration, including awkward rates that round.
func TestCompute_SumProperty(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		total := decimal.New(rng.Int63n(1000000)+100, -2)
		fee := decimal.New(rng.Int63n(2000), -2)

		var business, driver *Participant
		if rng.Intn(4) > 0 {
			business = verifiedBusiness()
			business.CommissionRate = decimal.New(rng.Int63n(3000), -4) // 0 - 30%
			business.Verified = rng.Intn(5) > 0
		}
		if rng.Intn(2) == 0 {
			driver = activeDriver()
			driver.Active = rng.Intn(5) > 0
		}

		entries, err := Compute(cfg, Input{
			OrderNumber: "PROP0001",
			Total:       total,
			DeliveryFee: fee,
			Business:    business,
			Driver:      driver,
		})
		require.NoError(t, err)

		require.NotEmpty(t, entries)
		assert.Equal(t, model.CommissionTypePlatform, entries[len(entries)-1].Type)
		assert.True(t, Sum(entries).Equal(total), "iteration %d: sum=%s total=%s", i, Sum(entries), total)
	}
}
