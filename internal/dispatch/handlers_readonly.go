package dispatch

import "github.com/originsim/origin-server/internal/state"

// These handlers answer the §4.8-supplemented read-only commands: fixed or
// near-fixed device metadata that the reference implementation serves
// without touching TelescopeState beyond what New() already seeded.

func handleGetSerialNumber(ctx *Context) (Fields, int, string) {
	var sn string
	ctx.Store.View(func(s state.TelescopeState) { sn = s.FactoryCal.SerialNumber })
	return Fields{"SerialNumber": sn}, 0, ""
}

func handleHasUpdateAvailable(ctx *Context) (Fields, int, string) {
	return Fields{"Available": false, "Version": ""}, 0, ""
}

func handleGetUpdateChannel(ctx *Context) (Fields, int, string) {
	var channel string
	ctx.Store.View(func(s state.TelescopeState) { channel = s.System.UpdateChannel })
	return Fields{"Channel": channel}, 0, ""
}

func handleHasInternetConnection(ctx *Context) (Fields, int, string) {
	var connected bool
	ctx.Store.View(func(s state.TelescopeState) { connected = s.Network.HasInternet })
	return Fields{"Connected": connected}, 0, ""
}

func handleGetForceDirectConnect(ctx *Context) (Fields, int, string) {
	var force bool
	ctx.Store.View(func(s state.TelescopeState) { force = s.Network.ForceDirectConnect })
	return Fields{"ForceDirectConnect": force}, 0, ""
}

func handleGetCameraInfo(ctx *Context) (Fields, int, string) {
	return Fields{
		"ModelName":            "Origin Camera",
		"SensorWidth":          14.8,
		"SensorHeight":         11.1,
		"PixelSize":            4.63,
		"EffectiveFocalLength": 700,
	}, 0, ""
}

func handleGetSensors(ctx *Context) (Fields, int, string) {
	return Fields{"Sensors": []string{
		"AMBIENT_TEMPERATURE", "HUMIDITY", "DEW_POINT",
		"FRONT_CELL_TEMPERATURE", "CPU_TEMPERATURE", "CAMERA_TEMPERATURE",
	}}, 0, ""
}

func handleGetBrightnessLevel(ctx *Context) (Fields, int, string) {
	var level int
	ctx.Store.View(func(s state.TelescopeState) { level = s.LedRing.BrightnessLevel })
	return Fields{"Level": level}, 0, ""
}

func handleGetFocuserAdvancedSettings(ctx *Context) (Fields, int, string) {
	return Fields{
		"BacklashSteps":           255,
		"DefaultSpeed":            250,
		"DefaultAcceleration":     800,
		"DirectionToggleDelayMs":  500,
	}, 0, ""
}

func handleGetMountConfig(ctx *Context) (Fields, int, string) {
	return Fields{"MaximumSpeed": 3.0, "SlewSettleTime": 1.0}, 0, ""
}

func handleGetPositionLimits(ctx *Context) (Fields, int, string) {
	var lower, upper int
	ctx.Store.View(func(s state.TelescopeState) {
		lower, upper = s.Focuser.CalibrationLowerLimit, s.Focuser.CalibrationUpperLimit
	})
	return Fields{"MaximumPosition": upper, "MinimumPosition": lower}, 0, ""
}

func handleGetEnableManual(ctx *Context) (Fields, int, string) {
	var enabled bool
	ctx.Store.View(func(s state.TelescopeState) { enabled = s.LiveStream.ManualEnabled })
	return Fields{"EnableManual": enabled}, 0, ""
}

func handleGetFilter(ctx *Context) (Fields, int, string) {
	var filter string
	ctx.Store.View(func(s state.TelescopeState) { filter = s.Camera.Filter })
	return Fields{"Filter": filter}, 0, ""
}

func handleGetDirectConnectPassword(ctx *Context) (Fields, int, string) {
	var pw string
	ctx.Store.View(func(s state.TelescopeState) { pw = s.Network.DirectConnectPasswd })
	return Fields{"Password": pw}, 0, ""
}
