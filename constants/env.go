package constants

const (
	// EnvCtrlInterfaceDir overrides the control socket directory
	EnvCtrlInterfaceDir = "DSCPD_CTRL_INTERFACE_DIR"

	// EnvLogLevel overrides the log level of the daemon
	EnvLogLevel = "DSCPD_LOG_LEVEL"
)
