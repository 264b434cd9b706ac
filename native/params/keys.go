package params

const (
	// KeyAssetPrefix prefixes per-denom risk parameter records.
	KeyAssetPrefix = "params/assets/"
	// KeyVaultPrefix prefixes per-vault risk configuration records.
	KeyVaultPrefix = "params/vaults/"
	// KeyTargetHealthFactor stores the liquidation sizing target.
	KeyTargetHealthFactor = "params/system/targetHealthFactor"
	// KeyPauses stores the module pause configuration.
	KeyPauses = "params/system/pauses"
)
