package dispatch

import (
	"github.com/tidwall/gjson"

	"github.com/originsim/origin-server/internal/astro"
	"github.com/originsim/origin-server/internal/state"
)

func handleRunInitialize(ctx *Context) (Fields, int, string) {
	fake := gjson.GetBytes(ctx.Raw, "FakeInitialize").Bool()
	lat := gjson.GetBytes(ctx.Raw, "Latitude")
	lon := gjson.GetBytes(ctx.Raw, "Longitude")

	ctx.Store.Update(func(s *state.TelescopeState) {
		if lat.Exists() {
			s.Mount.Latitude = lat.Float()
		}
		if lon.Exists() {
			s.Mount.Longitude = lon.Float()
		}
		// Mirrors the reference handler's own quirk: the RunInitialize response
		// reports state=INITIALIZED/stage=FINISHED/isReady=true immediately,
		// before the init ticker (which later settles the stage on COMPLETE
		// or STOPPED) has even started.
		s.Task.State = state.TaskInitialized
		s.Task.Stage = state.StageFinished
		s.Task.IsReady = true
		s.Mount.IsAligned = true
		s.Init = state.Init{NumPoints: 2, NumPointsRemaining: 0, PercentComplete: 100, PositionOfFocus: -1}
	})
	ctx.Activities.StartInitialize(fake)
	return nil, 0, ""
}

func handleStartAlignment(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) {
		s.Mount.IsAligned = false
		s.Mount.NumAlignRefs = 0
	})
	return nil, 0, ""
}

func handleAddAlignmentPoint(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) {
		s.Mount.NumAlignRefs++
	})
	return nil, 0, ""
}

func handleFinishAlignment(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) {
		if s.Mount.NumAlignRefs >= 1 {
			s.Mount.IsAligned = true
		}
	})
	return nil, 0, ""
}

func handleGotoRaDec(ctx *Context) (Fields, int, string) {
	var aligned bool
	ctx.Store.View(func(s state.TelescopeState) { aligned = s.Mount.IsAligned })
	if !aligned {
		return nil, 1, "Telescope not aligned"
	}

	ra := gjson.GetBytes(ctx.Raw, "Ra").Float()
	dec := gjson.GetBytes(ctx.Raw, "Dec").Float()
	ctx.Store.Update(func(s *state.TelescopeState) {
		s.Mount.TargetRa = ra
		s.Mount.TargetDec = dec
		s.Mount.IsSlewing = true
		s.Mount.IsGotoOver = false
	})
	ctx.Activities.StartSlew()
	return nil, 0, ""
}

// jogRate converts a small signed integer rate code into arcseconds per
// second, preserving the reference device's exact shift formula.
func jogRate(rate int64) int64 {
	if rate < 0 {
		return -(1 << uint(-rate))
	}
	return (1 << uint(rate)) - 1
}

// handleSlewJog implements the Mount/Slew jog command. The reference
// implementation swaps the alt/az axes when applying the rate offsets
// (AltRate is added to azimuth, AzmRate to altitude); spec.md §4.4 flags
// this as a known anomaly to preserve rather than a bug to fix, so the
// swap stays.
func handleSlewJog(ctx *Context) (Fields, int, string) {
	var aligned bool
	var targetRa, targetDec, lat, lon float64
	ctx.Store.View(func(s state.TelescopeState) {
		aligned = s.Mount.IsAligned
		targetRa, targetDec = s.Mount.TargetRa, s.Mount.TargetDec
		lat, lon = s.Mount.Latitude, s.Mount.Longitude
	})
	if !aligned {
		return nil, 1, "Telescope not aligned"
	}

	altRate := jogRate(gjson.GetBytes(ctx.Raw, "AltRate").Int())
	azRate := jogRate(gjson.GetBytes(ctx.Raw, "AzmRate").Int())

	julian := jd(ctx.Store)
	alt, az := astro.EquatorialToHorizontal(targetRa, targetDec, lat, lon, julian)
	az += float64(altRate) / 3600.0
	alt += float64(azRate) / 3600.0
	newRa, newDec := astro.HorizontalToEquatorial(alt, az, lat, lon, julian)

	ctx.Store.Update(func(s *state.TelescopeState) {
		s.Mount.TargetRa = newRa
		s.Mount.TargetDec = newDec
		s.Mount.IsSlewing = true
		s.Mount.IsGotoOver = false
	})
	ctx.Activities.StartSlew()
	return nil, 0, ""
}

func handleAbortAxisMovement(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) {
		s.Mount.IsGotoOver = true
		s.Mount.IsSlewing = false
	})
	return nil, 0, ""
}

func handleStartTracking(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) { s.Mount.IsTracking = true })
	return nil, 0, ""
}

func handleStopTracking(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) { s.Mount.IsTracking = false })
	return nil, 0, ""
}

func handleRunImaging(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) {
		s.Imaging.IsImaging = true
		s.Imaging.ImagingTimeLeft = 30
	})
	ctx.Activities.StartImaging()
	return nil, 0, ""
}

func handleCancelImaging(ctx *Context) (Fields, int, string) {
	ctx.Store.Update(func(s *state.TelescopeState) { s.Imaging.IsImaging = false })
	return nil, 0, ""
}

func handleMoveToPositionFocuser(ctx *Context) (Fields, int, string) {
	pos := gjson.GetBytes(ctx.Raw, "Position").Int()
	ctx.Store.Update(func(s *state.TelescopeState) { s.Focuser.Position = int(pos) })
	return nil, 0, ""
}

func handleSetBacklashFocuser(ctx *Context) (Fields, int, string) {
	v := gjson.GetBytes(ctx.Raw, "Backlash")
	if v.Exists() {
		ctx.Store.Update(func(s *state.TelescopeState) { s.Focuser.Backlash = int(v.Int()) })
	}
	return nil, 0, ""
}

func handleSetModeDewHeater(ctx *Context) (Fields, int, string) {
	mode := gjson.GetBytes(ctx.Raw, "Mode")
	agg := gjson.GetBytes(ctx.Raw, "Aggression")
	manual := gjson.GetBytes(ctx.Raw, "ManualPowerLevel")
	ctx.Store.Update(func(s *state.TelescopeState) {
		if mode.Exists() {
			s.DewHeater.Mode = mode.String()
		}
		if agg.Exists() {
			s.DewHeater.Aggression = int(agg.Int())
		}
		if manual.Exists() {
			s.DewHeater.ManualPowerLevel = manual.Float()
		}
	})
	return nil, 0, ""
}

func handleSetCaptureParameters(ctx *Context) (Fields, int, string) {
	exposure := gjson.GetBytes(ctx.Raw, "Exposure")
	iso := gjson.GetBytes(ctx.Raw, "ISO")
	binning := gjson.GetBytes(ctx.Raw, "Binning")
	offset := gjson.GetBytes(ctx.Raw, "Offset")
	colorR := gjson.GetBytes(ctx.Raw, "ColorRBalance")
	colorG := gjson.GetBytes(ctx.Raw, "ColorGBalance")
	colorB := gjson.GetBytes(ctx.Raw, "ColorBBalance")

	ctx.Store.Update(func(s *state.TelescopeState) {
		if exposure.Exists() {
			s.Camera.Exposure = exposure.Float()
		}
		if iso.Exists() {
			s.Camera.ISO = int(iso.Int())
		}
		if binning.Exists() {
			s.Camera.Binning = int(binning.Int())
		}
		if offset.Exists() {
			s.Camera.Offset = int(offset.Int())
		}
		if colorR.Exists() {
			s.Camera.ColorRBalance = colorR.Float()
		}
		if colorG.Exists() {
			s.Camera.ColorGBalance = colorG.Float()
		}
		if colorB.Exists() {
			s.Camera.ColorBBalance = colorB.Float()
		}
	})
	return nil, 0, ""
}

func handleGetCaptureParameters(ctx *Context) (Fields, int, string) {
	var c state.Camera
	ctx.Store.View(func(s state.TelescopeState) { c = s.Camera })
	return Fields{
		"Binning":       c.Binning,
		"BitDepth":      c.BitDepth,
		"ColorBBalance": c.ColorBBalance,
		"ColorGBalance": c.ColorGBalance,
		"ColorRBalance": c.ColorRBalance,
		"Exposure":      c.Exposure,
		"ISO":           c.ISO,
		"Offset":        c.Offset,
	}, 0, ""
}

func handleSetRegulatoryDomainNetwork(ctx *Context) (Fields, int, string) {
	cc := gjson.GetBytes(ctx.Raw, "CountryCode").String()
	ctx.Store.Update(func(s *state.TelescopeState) { s.System.CountryCode = cc })
	return nil, 0, ""
}

func handleGetDirectoryListImageServer(ctx *Context) (Fields, int, string) {
	var names []string
	ctx.Store.View(func(s state.TelescopeState) {
		for _, d := range s.AstroDirs {
			names = append(names, d.Name)
		}
	})
	return Fields{"DirectoryList": names}, 0, ""
}

func handleGetDirectoryContentsImageServer(ctx *Context) (Fields, int, string) {
	dir := gjson.GetBytes(ctx.Raw, "Directory").String()
	var files []string
	ctx.Store.View(func(s state.TelescopeState) {
		for _, d := range s.AstroDirs {
			if d.Name == dir {
				files = d.Files
				return
			}
		}
	})
	return Fields{"FileList": files}, 0, ""
}

func handleGetVersion(ctx *Context) (Fields, int, string) {
	var sys state.System
	ctx.Store.View(func(s state.TelescopeState) { sys = s.System })
	return Fields{"Number": sys.VersionNumber, "Version": sys.VersionString}, 0, ""
}

func handleGetModel(ctx *Context) (Fields, int, string) {
	var name string
	ctx.Store.View(func(s state.TelescopeState) { name = s.System.ModelName })
	devices := []string{
		"System", "TaskController", "Imaging", "Mount", "Focuser", "Camera",
		"WiFi", "DewHeater", "Environment", "LedRing", "OrientationSensor", "Debug",
	}
	return Fields{"Value": name, "Devices": devices}, 0, ""
}

func handleGetStatus(ctx *Context) (Fields, int, string) {
	var snap state.TelescopeState
	ctx.Store.View(func(s state.TelescopeState) { snap = s })

	switch ctx.Env.Destination {
	case "Mount":
		return mountStatusFields(snap), 0, ""
	case "Focuser":
		return focuserStatusFields(snap), 0, ""
	case "Environment":
		return environmentStatusFields(snap), 0, ""
	case "Disk":
		return diskStatusFields(snap), 0, ""
	case "DewHeater":
		return dewHeaterStatusFields(snap), 0, ""
	case "OrientationSensor":
		return orientationStatusFields(snap), 0, ""
	case "TaskController":
		return taskControllerStatusFields(snap), 0, ""
	case "FactoryCalibrationController":
		return factoryCalStatusFields(snap), 0, ""
	default:
		return nil, 0, ""
	}
}

func mountStatusFields(s state.TelescopeState) Fields {
	m := s.Mount
	return Fields{
		"BatteryLevel":   string(m.BatteryLevel),
		"BatteryVoltage": m.BatteryVoltage,
		"ChargerStatus":  m.ChargerStatus,
		"Latitude":       m.Latitude,
		"Longitude":      m.Longitude,
		"IsAligned":      m.IsAligned,
		"IsGotoOver":     m.IsGotoOver,
		"IsTracking":     m.IsTracking,
		"NumAlignRefs":   m.NumAlignRefs,
		"Enc0":           m.Enc0,
		"Enc1":           m.Enc1,
		"Ra":             m.Ra,
		"Dec":            m.Dec,
	}
}

func focuserStatusFields(s state.TelescopeState) Fields {
	f := s.Focuser
	return Fields{
		"Backlash":                      f.Backlash,
		"CalibrationLowerLimit":         f.CalibrationLowerLimit,
		"CalibrationUpperLimit":         f.CalibrationUpperLimit,
		"IsCalibrationComplete":         f.IsCalibrationComplete,
		"IsMoveToOver":                  f.IsMoveToOver,
		"NeedAutoFocus":                 f.NeedAutoFocus,
		"PercentageCalibrationComplete": f.PercentageCalibrationComplete,
		"Position":                      f.Position,
		"RequiresCalibration":           f.RequiresCalibration,
		"Velocity":                      f.Velocity,
	}
}

func environmentStatusFields(s state.TelescopeState) Fields {
	e := s.Env
	return Fields{
		"AmbientTemperature":   e.AmbientTemperature,
		"CameraTemperature":    e.CameraTemperature,
		"CpuFanOn":             e.CPUFanOn,
		"CpuTemperature":       e.CPUTemperature,
		"DewPoint":             e.DewPoint,
		"FrontCellTemperature": e.FrontCellTemperature,
		"Humidity":             e.Humidity,
		"OtaFanOn":             e.OTAFanOn,
		"Recalibrating":        e.Recalibrating,
	}
}

func diskStatusFields(s state.TelescopeState) Fields {
	d := s.Disk
	return Fields{"Capacity": d.Capacity, "FreeBytes": d.FreeBytes, "Level": d.Level}
}

func dewHeaterStatusFields(s state.TelescopeState) Fields {
	d := s.DewHeater
	return Fields{
		"Aggression":       d.Aggression,
		"HeaterLevel":      d.HeaterLevel,
		"ManualPowerLevel": d.ManualPowerLevel,
		"Mode":             d.Mode,
	}
}

func orientationStatusFields(s state.TelescopeState) Fields {
	return Fields{"Altitude": s.Orientation.Altitude}
}

func taskControllerStatusFields(s state.TelescopeState) Fields {
	t := s.Task
	return Fields{"IsReady": t.IsReady, "Stage": string(t.Stage), "State": string(t.State)}
}

func factoryCalStatusFields(s state.TelescopeState) Fields {
	f := s.FactoryCal
	return Fields{
		"IsCalibrated":            f.IsFactoryCalibrated,
		"NumTimesCollimated":      f.NumTimesCollimated,
		"NumTimesHotSpotCentered": f.NumTimesHotSpotCentered,
	}
}
