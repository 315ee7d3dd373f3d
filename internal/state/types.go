// Package state owns the TelescopeState record described in the protocol
// spec: every field a client can observe, plus the simulation bookkeeping
// (sequence counter, image cycle index, target coordinates, activity
// flags) needed to drive it over time.
package state

// BatteryLevel is the coarse battery-charge bucket reported by the mount.
type BatteryLevel string

const (
	BatteryHigh BatteryLevel = "HIGH"
	BatteryMed  BatteryLevel = "MED"
	BatteryLow  BatteryLevel = "LOW"
)

// ImageType distinguishes where a served image came from.
type ImageType string

const (
	ImageLive    ImageType = "LIVE"
	ImageHiPS    ImageType = "HIPS_IMAGE"
	ImageStacked ImageType = "STACKED"
)

// TaskControllerState is the task controller's coarse activity state.
type TaskControllerState string

const (
	TaskIdle         TaskControllerState = "IDLE"
	TaskInitializing TaskControllerState = "INITIALIZING"
	TaskInitialized  TaskControllerState = "INITIALIZED"
	TaskImaging      TaskControllerState = "IMAGING"
	TaskSlewing      TaskControllerState = "SLEWING"
)

// TaskControllerStage is the task controller's stage within its state.
type TaskControllerStage string

const (
	StageInProgress TaskControllerStage = "IN_PROGRESS"
	StageComplete   TaskControllerStage = "COMPLETE"
	StageStopped    TaskControllerStage = "STOPPED"
	StageFinished   TaskControllerStage = "FINISHED"
)

// Mount groups the equatorial-mount fields from the protocol spec.
type Mount struct {
	BatteryLevel   BatteryLevel
	BatteryVoltage float64
	ChargerStatus  string

	Ra, Dec             float64 // radians
	TargetRa, TargetDec float64 // radians

	IsAligned   bool
	IsTracking  bool
	IsGotoOver  bool
	IsSlewing   bool
	NumAlignRefs int

	Latitude, Longitude float64 // radians, observer location

	Enc0, Enc1 float64
}

// Camera groups the imaging-sensor configuration fields.
type Camera struct {
	Exposure float64 // seconds
	ISO      int
	Binning  int // 1, 2 or 4
	Offset   int
	BitDepth int

	ColorRBalance, ColorGBalance, ColorBBalance float64
	Filter                                      string
}

// Focuser groups the focuser mechanism fields.
type Focuser struct {
	Position                            int
	Backlash                            int
	CalibrationLowerLimit               int
	CalibrationUpperLimit               int
	IsMoveToOver                        bool
	IsCalibrationComplete               bool
	PercentageCalibrationComplete       int
	NeedAutoFocus                       bool
	RequiresCalibration                 bool
	Velocity                            float64
}

// Environment groups the ambient-sensor fields.
type Environment struct {
	AmbientTemperature   float64
	CPUTemperature       float64
	CameraTemperature    float64
	FrontCellTemperature float64
	DewPoint             float64
	Humidity             float64
	CPUFanOn             bool
	OTAFanOn             bool
	Recalibrating        bool
}

// Disk groups the storage-capacity fields.
type Disk struct {
	Capacity  int64 // bytes
	FreeBytes int64 // bytes
	Level     string
}

// Image groups the fields describing the most recently produced image.
type Image struct {
	FileLocation string
	ImageType    ImageType
	FovX, FovY   float64 // radians
	Orientation  float64 // radians
}

// TaskController groups the overall activity-state fields.
type TaskController struct {
	State   TaskControllerState
	Stage   TaskControllerStage
	IsReady bool
}

// Init groups the alignment-initialization progress fields.
type Init struct {
	NumPoints          int
	NumPointsRemaining int
	PercentComplete    int
	PositionOfFocus    int
}

// DewHeater groups the dew-heater control fields.
type DewHeater struct {
	Mode             string
	Aggression       int
	ManualPowerLevel float64
	HeaterLevel      float64
}

// Orientation groups the orientation-sensor fields.
type Orientation struct {
	Altitude int // degrees, varies 59-60 per the captured reference session
}

// FactoryCalibration groups the factory-calibration-controller fields.
type FactoryCalibration struct {
	IsFactoryCalibrated     bool
	NumTimesCollimated      int
	NumTimesHotSpotCentered int
	CompletedPhases         []string
	CurrentPhase            string
	SerialNumber            string
}

// System groups fixed/slow-moving device-identity fields.
type System struct {
	VersionNumber    string
	VersionString    string
	ModelName        string
	UpdateChannel    string
	CountryCode      string
	TimeZone         string
}

// Network groups the fields behind the Network subsystem's read-only commands.
type Network struct {
	RegulatoryDomain    string
	HasInternet         bool
	ForceDirectConnect  bool
	DirectConnectPasswd string
}

// LedRing groups the fields behind the LedRing subsystem's read-only commands.
type LedRing struct {
	BrightnessLevel int
}

// LiveStream groups the fields behind the LiveStream subsystem's read-only commands.
type LiveStream struct {
	ManualEnabled bool
}

// Imaging holds the in-progress-exposure bookkeeping the activity scheduler drives.
type Imaging struct {
	IsImaging      bool
	ImagingTimeLeft int // seconds
}

// AstroDir is one entry in the fixed astrophotography directory listing.
type AstroDir struct {
	Name  string
	Files []string
}

// TelescopeState is the single process-wide record of every observable
// field the protocol reports, plus simulation bookkeeping. It is never
// destroyed, only overwritten, for the lifetime of the process.
type TelescopeState struct {
	Mount              Mount
	Camera             Camera
	Focuser            Focuser
	Env                Environment
	Disk               Disk
	Image              Image
	Task               TaskController
	Init               Init
	DewHeater          DewHeater
	Orientation        Orientation
	FactoryCal         FactoryCalibration
	System             System
	Network            Network
	LedRing            LedRing
	LiveStream         LiveStream
	Imaging            Imaging

	CurrentSequenceID int64
	ImageCounter      int

	AstroDirs []AstroDir

	diskUpdateTicks int
}
