package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidZipcode(t *testing.T) {
	tests := []struct {
		name    string
		zipcode string
		valid   bool
	}{
		{name: "Five digits", zipcode: "90210", valid: true},
		{name: "Leading zero", zipcode: "02134", valid: true},
		{name: "Too short", zipcode: "9021", valid: false},
		{name: "Too long", zipcode: "902101", valid: false},
		{name: "Zip plus four", zipcode: "90210-1234", valid: false},
		{name: "Letters", zipcode: "9021a", valid: false},
		{name: "Empty", zipcode: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidZipcode(tt.zipcode))
		})
	}
}

func TestNormalizeZipcode(t *testing.T) {
	assert.Equal(t, "90210", NormalizeZipcode("  90210 "))
	assert.True(t, ValidZipcode(NormalizeZipcode("\t10001\n")))
}

func TestTrackedZipcodesList(t *testing.T) {
	cfg := RefreshConfig{
		TrackedZipcodes: []string{"90210", " 10001", "bogus", "90210", "", "02134"},
	}

	assert.Equal(t, []string{"90210", "10001", "02134"}, cfg.TrackedZipcodesList())
}

func TestTrackedZipcodesList_Empty(t *testing.T) {
	cfg := RefreshConfig{}
	assert.Empty(t, cfg.TrackedZipcodesList())
}

func TestSyncConfig_DefaultStart(t *testing.T) {
	cfg := SyncConfig{DefaultStartDate: "2020-03-15"}
	assert.Equal(t, time.Date(2020, time.March, 15, 0, 0, 0, 0, time.UTC), cfg.DefaultStart())

	cfg.DefaultStartDate = "not a date"
	assert.Equal(t, time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), cfg.DefaultStart())
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("TRACKED_ZIPCODES", "90210,10001")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.TTL)
	assert.Equal(t, 12, cfg.Query.DefaultLimit)
	assert.Equal(t, 100, cfg.Query.MaxLimit)
	assert.Equal(t, 100, cfg.Upstream.PageSize)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, []string{"90210", "10001"}, cfg.Refresh.TrackedZipcodes)
}
