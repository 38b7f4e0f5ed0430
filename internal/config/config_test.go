package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		HTTPPort: 8080,
		LogLevel: "info",
		Tables:   []string{"PORT_TABLE:10", "VLAN_TABLE"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Ring:     RingConfig{Size: 30},
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Ring.Size)
	assert.Equal(t, "swagent", cfg.ConsumerGroup)
	assert.False(t, cfg.WarmRestart)
	assert.NotEmpty(t, cfg.Tables)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.HTTPPort = 0 }, false},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }, false},
		{"no tables", func(c *Config) { c.Tables = nil }, false},
		{"bad ring size", func(c *Config) { c.Ring.Size = 0 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, false},
		{"bad table priority", func(c *Config) { c.Tables = []string{"PORT_TABLE:x"} }, false},
		{"bad ref field", func(c *Config) { c.RefFields = []string{"nonsense"} }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestParseTables(t *testing.T) {
	cfg := validConfig()
	cfg.Tables = []string{"PORT_TABLE:10", "VLAN_TABLE", " ROUTE_TABLE:0 ", ""}

	specs, err := cfg.ParseTables()
	require.NoError(t, err)
	assert.Equal(t, []TableSpec{
		{Name: "PORT_TABLE", Priority: 10},
		{Name: "VLAN_TABLE", Priority: 0},
		{Name: "ROUTE_TABLE", Priority: 0},
	}, specs)
}

func TestRefFieldSpecs(t *testing.T) {
	cfg := validConfig()
	cfg.RefFields = []string{
		"VLAN_MEMBER_TABLE.vlan=VLAN_TABLE",
		"LAG_TABLE.members[]=PORT_TABLE",
	}

	specs, err := cfg.RefFieldSpecs()
	require.NoError(t, err)
	assert.Equal(t, []RefFieldSpec{
		{Table: "VLAN_MEMBER_TABLE", Field: "vlan", RefTable: "VLAN_TABLE", List: false},
		{Table: "LAG_TABLE", Field: "members", RefTable: "PORT_TABLE", List: true},
	}, specs)

	cfg.RefFields = []string{"missing_table=X"}
	_, err = cfg.RefFieldSpecs()
	assert.Error(t, err)
}

func TestIsRingTable(t *testing.T) {
	cfg := validConfig()
	cfg.RingTables = []string{"ROUTE_TABLE", " NEIGH_TABLE"}

	assert.True(t, cfg.IsRingTable("ROUTE_TABLE"))
	assert.True(t, cfg.IsRingTable("NEIGH_TABLE"))
	assert.False(t, cfg.IsRingTable("PORT_TABLE"))
}

func TestGetHTTPAddr(t *testing.T) {
	assert.Equal(t, ":8080", validConfig().GetHTTPAddr())
}
