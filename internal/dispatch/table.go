package dispatch

// destinationKeyed holds handlers for commands whose effect depends on the
// destination subsystem, keyed as "Command|Destination".
var destinationKeyed = map[string]HandlerFunc{
	"MoveToPosition|Focuser":              handleMoveToPositionFocuser,
	"SetBacklash|Focuser":                 handleSetBacklashFocuser,
	"SetMode|DewHeater":                   handleSetModeDewHeater,
	"Slew|Mount":                          handleSlewJog,
	"GetListOfAvailableDirectories|ImageServer": handleGetDirectoryListImageServer,
	"GetDirectoryContents|ImageServer":    handleGetDirectoryContentsImageServer,
	"GetSerialNumber|FactoryCalibrationController": handleGetSerialNumber,
	"HasUpdateAvailable|System":           handleHasUpdateAvailable,
	"GetUpdateChannel|System":             handleGetUpdateChannel,
	"SetRegulatoryDomain|Network":         handleSetRegulatoryDomainNetwork,
	"HasInternetConnection|Network":       handleHasInternetConnection,
	"GetForceDirectConnect|Network":       handleGetForceDirectConnect,
	"GetCameraInfo|Camera":                handleGetCameraInfo,
	"GetSensors|Environment":              handleGetSensors,
	"GetBrightnessLevel|LedRing":          handleGetBrightnessLevel,
	"GetFocuserAdvancedSettings|Focuser":  handleGetFocuserAdvancedSettings,
	"GetMountConfig|Mount":                handleGetMountConfig,
	"GetPositionLimits|Focuser":           handleGetPositionLimits,
	"GetEnableManual|LiveStream":          handleGetEnableManual,
	"GetFilter|Camera":                    handleGetFilter,
	"GetDirectConnectPassword|Network":    handleGetDirectConnectPassword,
}

// commandKeyed holds handlers for commands dispatched purely by name.
var commandKeyed = map[string]HandlerFunc{
	"RunInitialize":         handleRunInitialize,
	"StartAlignment":        handleStartAlignment,
	"AddAlignmentPoint":     handleAddAlignmentPoint,
	"FinishAlignment":       handleFinishAlignment,
	"GotoRaDec":             handleGotoRaDec,
	"AbortAxisMovement":     handleAbortAxisMovement,
	"StartTracking":         handleStartTracking,
	"StopTracking":          handleStopTracking,
	"RunImaging":            handleRunImaging,
	"CancelImaging":         handleCancelImaging,
	"SetCaptureParameters":  handleSetCaptureParameters,
	"GetCaptureParameters":  handleGetCaptureParameters,
	"GetVersion":            handleGetVersion,
	"GetModel":              handleGetModel,
	"GetStatus":             handleGetStatus,
}
