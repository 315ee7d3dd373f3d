// Package emitter owns the set of live connections and periodically
// broadcasts subsystem status notifications drawn from the state store,
// following §4.6: a 1s tick schedules each subsystem's broadcast on a
// coprime pattern so they don't all fire on the same tick, and activities
// push their own immediate notifications (mount-reached-target,
// image-ready, initialization errors) through the same registry.
//
// The connection registry itself mirrors the reference backend's
// wsClients map: a plain map guarded by a RWMutex, the "weak reference"
// style broadcast that skips a connection on write failure rather than
// tearing anything down (the heartbeat state machine owns that decision).
package emitter

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/originsim/origin-server/internal/conn"
	"github.com/originsim/origin-server/internal/state"
	"github.com/originsim/origin-server/internal/telemetry"
)

const (
	tickInterval   = time.Second
	maxStaggerMs   = 30
	focuserEvery   = 2
	cameraEvery    = 3
	taskEvery      = 5
	envDiskEvery   = 10
	dewHeaterEvery = 15
	orientEvery    = 30
)

// Emitter holds the live connection registry and the subsystem
// notification builders.
type Emitter struct {
	store *state.Store

	mu    sync.RWMutex
	conns map[string]*conn.Connection

	tick  time.Duration
	stop  chan struct{}
	once  sync.Once
}

// New builds an Emitter over the given state store.
func New(store *state.Store) *Emitter {
	return &Emitter{
		store: store,
		conns: make(map[string]*conn.Connection),
		tick:  tickInterval,
		stop:  make(chan struct{}),
	}
}

// Register adds a connection to the broadcast set. Wired as the sniffer's
// post-handshake hook.
func (e *Emitter) Register(c *conn.Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns[c.ID] = c
}

// Unregister removes a connection. Wired as conn.Handlers.OnClosed.
func (e *Emitter) Unregister(c *conn.Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c.ID)
}

// CloseAll sends a normal-closure Close frame (status 1000) to every
// registered connection, for use during server shutdown (§5: "closes all
// connections"). Each Close tears its socket down and runs that
// connection's OnClosed callback before CloseAll moves on to the next.
func (e *Emitter) CloseAll() {
	for _, c := range e.connections() {
		c.Close(1000, "Server shutting down")
	}
}

func (e *Emitter) connections() []*conn.Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*conn.Connection, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

// send marshals msg and writes it to one connection, recording telemetry
// on failure rather than treating it as fatal to the broadcast.
func (e *Emitter) send(c *conn.Connection, msg map[string]any) {
	body, err := json.Marshal(msg)
	if err != nil {
		telemetry.Debugf("emitter: failed to marshal message for %s: %v", c.ID, err)
		return
	}
	if err := c.SendText(body); err != nil {
		telemetry.Debugf("emitter: send failed for %s: %v", c.ID, err)
	}
}

// Broadcast delivers msg to every currently registered connection. A
// failure on one connection does not stop delivery to the rest; the
// heartbeat state machine decides independently whether that connection
// survives.
func (e *Emitter) Broadcast(msg map[string]any) {
	for _, c := range e.connections() {
		e.send(c, msg)
	}
}

func (e *Emitter) envelope(command, source string) map[string]any {
	return map[string]any{
		"Command":     command,
		"Destination": "All",
		"Source":      source,
		"SequenceID":  e.store.NextSequenceID(),
		"Type":        "Notification",
		"ExpiredAt":   e.store.ExpiredAtMillis(),
	}
}

// Run starts the 1s emitter tick loop and blocks until Stop is called. It
// is meant to run on its own goroutine for the life of the process.
func (e *Emitter) Run() {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	var n int64
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			n++
			e.dispatchTick(n)
		}
	}
}

// Stop ends the tick loop. Safe to call more than once.
func (e *Emitter) Stop() {
	e.once.Do(func() { close(e.stop) })
}

func (e *Emitter) dispatchTick(n int64) {
	_, span := telemetry.Tracer().Start(context.Background(), "emitter.tick")
	span.SetAttributes(attribute.Int64("origin.tick", n), attribute.Int("origin.connections", len(e.connections())))
	defer span.End()

	e.scheduleIfDue(n, 1, e.BroadcastMountStatus)
	e.scheduleIfDue(n, focuserEvery, e.broadcastFocuserStatus)
	e.scheduleIfDue(n, cameraEvery, e.broadcastCameraAndImage)
	e.scheduleIfDue(n, taskEvery, e.broadcastTaskControllerStatus)
	e.scheduleIfDue(n, envDiskEvery, e.broadcastEnvAndDisk)
	e.scheduleIfDue(n, dewHeaterEvery, e.broadcastDewHeaterStatus)
	e.scheduleIfDue(n, orientEvery, e.broadcastOrientationStatus)
}

func (e *Emitter) scheduleIfDue(n, every int64, fn func()) {
	if n%every != 0 {
		return
	}
	delay := time.Duration(rand.Intn(maxStaggerMs+1)) * time.Millisecond
	time.AfterFunc(delay, fn)
}

// BroadcastMountStatus advances the simulated sidereal drift and sends the
// resulting mount status notification to every connection. Satisfies
// activity.Broadcaster.
func (e *Emitter) BroadcastMountStatus() {
	e.store.AdvanceCoordinates(e.tick)

	var m state.Mount
	e.store.View(func(s state.TelescopeState) { m = s.Mount })

	msg := e.envelope("GetStatus", "Mount")
	msg["BatteryLevel"] = m.BatteryLevel
	msg["BatteryVoltage"] = m.BatteryVoltage
	msg["ChargerStatus"] = m.ChargerStatus
	msg["Latitude"] = m.Latitude
	msg["Longitude"] = m.Longitude
	msg["Ra"] = m.Ra
	msg["Dec"] = m.Dec
	msg["IsAligned"] = m.IsAligned
	msg["IsGotoOver"] = m.IsGotoOver
	msg["IsTracking"] = m.IsTracking
	msg["IsSlewing"] = m.IsSlewing
	msg["NumAlignRefs"] = m.NumAlignRefs
	msg["Enc0"] = m.Enc0
	msg["Enc1"] = m.Enc1

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("Mount").Inc()
}

func (e *Emitter) broadcastFocuserStatus() {
	var f state.Focuser
	e.store.View(func(s state.TelescopeState) { f = s.Focuser })

	msg := e.envelope("GetStatus", "Focuser")
	msg["Backlash"] = f.Backlash
	msg["CalibrationLowerLimit"] = f.CalibrationLowerLimit
	msg["CalibrationUpperLimit"] = f.CalibrationUpperLimit
	msg["IsCalibrationComplete"] = f.IsCalibrationComplete
	msg["IsMoveToOver"] = f.IsMoveToOver
	msg["NeedAutoFocus"] = f.NeedAutoFocus
	msg["PercentageCalibrationComplete"] = f.PercentageCalibrationComplete
	msg["Position"] = f.Position
	msg["RequiresCalibration"] = f.RequiresCalibration
	msg["Velocity"] = f.Velocity

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("Focuser").Inc()
}

func (e *Emitter) broadcastCameraAndImage() {
	var c state.Camera
	e.store.View(func(s state.TelescopeState) { c = s.Camera })

	params := e.envelope("GetCaptureParameters", "Camera")
	params["Binning"] = c.Binning
	params["BitDepth"] = c.BitDepth
	params["ColorBBalance"] = c.ColorBBalance
	params["ColorGBalance"] = c.ColorGBalance
	params["ColorRBalance"] = c.ColorRBalance
	params["Exposure"] = c.Exposure
	params["ISO"] = c.ISO
	params["Offset"] = c.Offset

	e.Broadcast(params)
	telemetry.NotificationsTotal.WithLabelValues("Camera").Inc()

	e.BroadcastNewImageReady()
}

// BroadcastNewImageReady sends the current image state as a NewImageReady
// notification. Satisfies activity.Broadcaster; also used by the periodic
// camera tick.
func (e *Emitter) BroadcastNewImageReady() {
	var img state.Image
	var ra, dec float64
	e.store.View(func(s state.TelescopeState) {
		img = s.Image
		ra = s.Mount.Ra
		dec = s.Mount.Dec
	})

	msg := e.envelope("NewImageReady", "ImageServer")
	msg["Ra"] = ra
	msg["Dec"] = dec
	msg["FileLocation"] = img.FileLocation
	msg["FovX"] = img.FovX
	msg["FovY"] = img.FovY
	msg["ImageType"] = img.ImageType
	msg["Orientation"] = img.Orientation

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("ImageServer").Inc()
}

func (e *Emitter) broadcastTaskControllerStatus() {
	var task state.TaskController
	e.store.View(func(s state.TelescopeState) { task = s.Task })

	msg := e.envelope("GetStatus", "TaskController")
	msg["IsReady"] = task.IsReady
	msg["Stage"] = task.Stage
	msg["State"] = task.State

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("TaskController").Inc()
}

func (e *Emitter) broadcastEnvAndDisk() {
	e.store.AdvanceEnvironment()

	var env state.Environment
	var disk state.Disk
	e.store.View(func(s state.TelescopeState) { env = s.Env; disk = s.Disk })

	envMsg := e.envelope("GetStatus", "Environment")
	envMsg["AmbientTemperature"] = env.AmbientTemperature
	envMsg["CameraTemperature"] = env.CameraTemperature
	envMsg["CpuFanOn"] = env.CPUFanOn
	envMsg["CpuTemperature"] = env.CPUTemperature
	envMsg["DewPoint"] = env.DewPoint
	envMsg["FrontCellTemperature"] = env.FrontCellTemperature
	envMsg["Humidity"] = env.Humidity
	envMsg["OtaFanOn"] = env.OTAFanOn
	envMsg["Recalibrating"] = env.Recalibrating
	e.Broadcast(envMsg)
	telemetry.NotificationsTotal.WithLabelValues("Environment").Inc()

	diskMsg := e.envelope("GetStatus", "Disk")
	diskMsg["Capacity"] = disk.Capacity
	diskMsg["FreeBytes"] = disk.FreeBytes
	diskMsg["Level"] = disk.Level
	e.Broadcast(diskMsg)
	telemetry.NotificationsTotal.WithLabelValues("Disk").Inc()
}

func (e *Emitter) broadcastDewHeaterStatus() {
	var d state.DewHeater
	e.store.View(func(s state.TelescopeState) { d = s.DewHeater })

	msg := e.envelope("GetStatus", "DewHeater")
	msg["Aggression"] = d.Aggression
	msg["HeaterLevel"] = d.HeaterLevel
	msg["ManualPowerLevel"] = d.ManualPowerLevel
	msg["Mode"] = d.Mode

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("DewHeater").Inc()
}

func (e *Emitter) broadcastOrientationStatus() {
	var o state.Orientation
	e.store.View(func(s state.TelescopeState) { o = s.Orientation })

	msg := e.envelope("GetStatus", "OrientationSensor")
	msg["Altitude"] = o.Altitude

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("OrientationSensor").Inc()
}

// BroadcastError sends a fixed-shape error notification, used by the
// initialization activity when its simulated failure chance hits. Command is
// always "Error", not the command that triggered it, so a client that
// correlates async failures by Command=="Error" recognizes it regardless of
// which activity raised it. Satisfies activity.Broadcaster.
func (e *Emitter) BroadcastError(code int, message string) {
	msg := e.envelope("Error", "TaskController")
	msg["ErrorCode"] = code
	msg["ErrorMessage"] = message

	e.Broadcast(msg)
	telemetry.NotificationsTotal.WithLabelValues("TaskController").Inc()
}
