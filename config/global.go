package config

import (
	"creditcore/native/common"
	"creditcore/native/params"
)

// ModulePauses converts the configured switches into the params-store shape
// applied at startup.
func (g Global) ModulePauses() params.Pauses {
	return params.Pauses{
		Credit: g.Pauses.Credit,
		Market: g.Pauses.Market,
		Oracle: g.Pauses.Oracle,
		Vault:  g.Pauses.Vault,
	}
}

// WriteQuota converts the configured caps into the runtime quota enforced on
// transaction routes.
func (g Global) WriteQuota() common.Quota {
	return common.Quota{
		MaxRequestsPerWindow: g.Quota.MaxRequestsPerWindow,
		MaxValuePerWindow:    g.Quota.MaxValuePerWindow,
		WindowSeconds:        g.Quota.WindowSeconds,
	}
}
