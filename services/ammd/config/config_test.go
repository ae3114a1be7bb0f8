package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
operator_account: amm-operator
ledger:
  endpoint: http://ledger:8080
tokens:
  - id: 1
    symbol: ckBTC
    decimals: 8
    network_fee: "10"
    supports_pull: true
  - id: 2
    symbol: ckUSDT
    decimals: 6
    supports_pull: true
anchors: [ckUSDT]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7082", cfg.ListenAddress)
	require.Equal(t, uint16(30), cfg.Fees.RateBps)
	require.Equal(t, float64(2), cfg.MaxSlippagePct)
	require.Equal(t, 10*time.Minute, cfg.RecencyWindow.Duration)
	require.Equal(t, 10*time.Second, cfg.Ledger.Timeout.Duration)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
operator_account: amm-operator
recency_window: 5m
ledger:
  endpoint: http://ledger:8080
  timeout: 3s
tokens:
  - id: 1
    symbol: ckBTC
    decimals: 8
  - id: 2
    symbol: ckUSDT
    decimals: 6
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.RecencyWindow.Duration)
	require.Equal(t, 3*time.Second, cfg.Ledger.Timeout.Duration)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "missing operator",
			body: `
ledger:
  endpoint: http://ledger:8080
tokens:
  - {id: 1, symbol: A, decimals: 0}
  - {id: 2, symbol: B, decimals: 0}
`,
		},
		{
			name: "single token",
			body: `
operator_account: op
ledger:
  endpoint: http://ledger:8080
tokens:
  - {id: 1, symbol: A, decimals: 0}
`,
		},
		{
			name: "duplicate symbol",
			body: `
operator_account: op
ledger:
  endpoint: http://ledger:8080
tokens:
  - {id: 1, symbol: A, decimals: 0}
  - {id: 2, symbol: a, decimals: 0}
`,
		},
		{
			name: "unknown anchor",
			body: `
operator_account: op
ledger:
  endpoint: http://ledger:8080
tokens:
  - {id: 1, symbol: A, decimals: 0}
  - {id: 2, symbol: B, decimals: 0}
anchors: [C]
`,
		},
		{
			name: "protocol share above fee rate",
			body: `
operator_account: op
ledger:
  endpoint: http://ledger:8080
fees:
  rate_bps: 30
  protocol_share_bps: 40
tokens:
  - {id: 1, symbol: A, decimals: 0}
  - {id: 2, symbol: B, decimals: 0}
`,
		},
		{
			name: "self-paired pool",
			body: `
operator_account: op
ledger:
  endpoint: http://ledger:8080
tokens:
  - {id: 1, symbol: A, decimals: 0}
  - {id: 2, symbol: B, decimals: 0}
pools:
  - {base: A, quote: A}
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}
