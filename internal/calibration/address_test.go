package calibration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x00000000000000000000000000000000000000Ab")
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), a[19])
	assert.Equal(t, "0x00000000000000000000000000000000000000ab", a.String())

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)
	_, err = ParseAddress("zz00000000000000000000000000000000000000")
	assert.Error(t, err)
}

func TestAddressJSON(t *testing.T) {
	a := MustAddress("0x1111111111111111111111111111111111111111")
	data, err := json.Marshal(map[string]Address{"a": a})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"0x1111111111111111111111111111111111111111"}`, string(data))

	var z Address
	require.NoError(t, z.UnmarshalText(nil))
	assert.True(t, z.IsZero())
}

func TestIsLegacyGroup(t *testing.T) {
	assert.False(t, IsLegacyGroup(0))
	assert.True(t, IsLegacyGroup(1))
	assert.True(t, IsLegacyGroup(2))
	assert.False(t, IsLegacyGroup(3))
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.TuneValue = 0
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.FeeAmount = 10
	assert.Error(t, s.Validate(), "fee without currency")

	s = DefaultSettings()
	s.FeeCurrency = MustAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	s.FeeBeneficiary = MustAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	s.FeeAmount = MaxAmount
	assert.NoError(t, s.Validate())
	s.FeeAmount = MaxAmount + 1
	assert.Error(t, s.Validate(), "fee beyond ledger range")
}

func TestGroupValidate(t *testing.T) {
	g := Group{ID: 4, Source: MustAddress("0x1111111111111111111111111111111111111111")}
	assert.NoError(t, g.Validate())
	assert.Equal(t, g.Source, g.RegistryAddress())
	assert.Equal(t, DefaultRegenMultiplier, g.Regen())

	g.Repository = MustAddress("0x2222222222222222222222222222222222222222")
	assert.Equal(t, g.Repository, g.RegistryAddress())

	assert.Error(t, Group{ID: 4}.Validate())
	assert.Error(t, Group{Source: g.Source}.Validate())
}
