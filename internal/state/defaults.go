package state

import "math"

const degToRad = math.Pi / 180.0

// New builds a TelescopeState with the same starting values the real
// device's captured session shows (see original_source/TelescopeState.h):
// London as observer, a mid-exposure camera, a calibrated focuser, and a
// mount that is not yet aligned (IsAligned=false, no alignment refs), so a
// goto is rejected until an alignment or RunInitialize has been done.
func New() *TelescopeState {
	s := &TelescopeState{
		Mount: Mount{
			BatteryLevel:   BatteryHigh,
			BatteryVoltage: 10.38,
			ChargerStatus:  "CHARGING",
			Latitude:       51.5072 * degToRad,
			Longitude:      0.1276 * degToRad,
			IsAligned:      false,
			IsGotoOver:     true,
			NumAlignRefs:   0,
		},
		Camera: Camera{
			Exposure:      0.5,
			ISO:           2000,
			Binning:       1,
			Offset:        0,
			BitDepth:      24,
			ColorRBalance: 78.0,
			ColorGBalance: 58.0,
			ColorBBalance: 120.0,
			Filter:        "Clear",
		},
		Focuser: Focuser{
			Position:                      18447,
			Backlash:                      255,
			CalibrationLowerLimit:         1975,
			CalibrationUpperLimit:         37527,
			IsMoveToOver:                  true,
			IsCalibrationComplete:         true,
			PercentageCalibrationComplete: 100,
			Velocity:                      0,
		},
		Env: Environment{
			AmbientTemperature:   15.988,
			CPUTemperature:       42.842,
			CameraTemperature:    24.3,
			FrontCellTemperature: 11.35,
			DewPoint:             8.108,
			Humidity:             67.0,
			CPUFanOn:             true,
			OTAFanOn:             true,
		},
		Disk: Disk{
			Capacity:  58281033728,
			FreeBytes: 52705251328,
			Level:     "OK",
		},
		Image: Image{
			FileLocation: "",
			ImageType:    ImageLive,
			Orientation:  3.120206959973186,
			FovX:         0.021893731343283578,
			FovY:         0.014672238805970147,
		},
		Task: TaskController{
			State:   TaskIdle,
			Stage:   StageInProgress,
			IsReady: false,
		},
		Init: Init{
			NumPointsRemaining: 2,
			PositionOfFocus:    -1,
		},
		DewHeater: DewHeater{
			Mode:       "Auto",
			Aggression: 5,
		},
		Orientation: Orientation{Altitude: 59},
		FactoryCal: FactoryCalibration{
			IsFactoryCalibrated:     true,
			NumTimesCollimated:      2,
			NumTimesHotSpotCentered: 2,
			CompletedPhases: []string{
				"UPDATE", "HARDWARE_CALIBRATION", "DARK_GENERATION",
				"FLAT_GENERATION", "FA_TEST", "BATTERY",
			},
			CurrentPhase: "IDLE",
			SerialNumber: "ORG-0001-SIM",
		},
		System: System{
			VersionNumber: "1.1.4248",
			VersionString: "1.1.4248\n (C++ = 09-04-2024 18:19, Java = 09-04-2024 18:19)",
			ModelName:     "Origin",
			UpdateChannel: "stable",
			CountryCode:   "GB",
			TimeZone:      "Europe/London",
		},
		Network: Network{
			RegulatoryDomain:    "",
			HasInternet:         true,
			ForceDirectConnect:  false,
			DirectConnectPasswd: "00000000",
		},
		LedRing:    LedRing{BrightnessLevel: 50},
		LiveStream: LiveStream{ManualEnabled: false},

		CurrentSequenceID: 16816,
		ImageCounter:       0,
	}

	baseRA := 186.15 * degToRad
	baseDec := 8.0 * degToRad
	s.Mount.Ra, s.Mount.Dec = baseRA, baseDec
	s.Mount.TargetRa, s.Mount.TargetDec = baseRA, baseDec

	s.AstroDirs = []AstroDir{
		{Name: "M31_Andromeda_Galaxy"},
		{Name: "M42_Orion_Nebula"},
		{Name: "M51_Whirlpool_Galaxy"},
		{Name: "M81_Bodes_Galaxy"},
		{Name: "M101_Pinwheel_Galaxy"},
		{Name: "NGC7635_Bubble_Nebula"},
		{Name: "IC1396_Elephant_Trunk"},
	}
	for i := range s.AstroDirs {
		s.AstroDirs[i].Files = []string{
			s.AstroDirs[i].Name + "_Light.tiff",
			s.AstroDirs[i].Name + "_Light.jpg",
		}
	}

	return s
}
