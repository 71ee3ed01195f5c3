package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := rootCmd()

	for _, path := range [][]string{{"serve"}, {"migrate"}, {"sweep"}, {"plans", "seed"}, {"plans", "list"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     appConfig
		wantErr bool
	}{
		{"memory", appConfig{StorageDriver: driverMemory, LockDriver: driverMemory}, false},
		{"postgres with redis locks", appConfig{StorageDriver: driverPostgres, LockDriver: driverRedis}, false},
		{"unknown storage", appConfig{StorageDriver: "sqlite", LockDriver: driverMemory}, true},
		{"unknown locks", appConfig{StorageDriver: driverMemory, LockDriver: "etcd"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPlansSeed_InMemory(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", driverMemory)
	t.Setenv("LOCK_DRIVER", driverMemory)
	t.Setenv("GATEWAY_DRIVER", "sandbox")

	file := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`plans:
  - code: premium_monthly
    name: Premium
    amount: 2999
    currency: USD
    interval_unit: month
    interval_count: 1
    trial_days: 7
  - code: basic_yearly
    name: Basic
    amount: 9900
    currency: EUR
    interval_unit: year
    interval_count: 1
`), 0o600))

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"plans", "seed", file})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "created 2 plan(s)")
}

func TestSweep_InMemory(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", driverMemory)
	t.Setenv("LOCK_DRIVER", driverMemory)

	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"sweep"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "due=0 charged=0")
}
