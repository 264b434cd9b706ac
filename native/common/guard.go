package common

import "errors"

// Module names understood by the pause switchboard.
const (
	ModuleCredit = "credit"
	ModuleMarket = "market"
	ModuleOracle = "oracle"
	ModuleParams = "params"
	ModuleVault  = "vault"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module's mutations are currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the module is paused. A nil view or an
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
