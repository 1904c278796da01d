// Package stream implements the frame streaming loop: capture a frame, send
// it over the message channel, wait for the processed result, draw it, repeat.
package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/teslashibe/go-framestream/pkg/camera"
	"github.com/teslashibe/go-framestream/pkg/capture"
	"github.com/teslashibe/go-framestream/pkg/channel"
	"github.com/teslashibe/go-framestream/pkg/frame"
	"github.com/teslashibe/go-framestream/pkg/metrics"
	"github.com/teslashibe/go-framestream/pkg/protocol"
	"github.com/teslashibe/go-framestream/pkg/surface"
)

// Protocol selects the wire messages used for frames.
type Protocol string

const (
	ProtocolSimple    Protocol = "simple"    // process_frame with a bare data URL
	ProtocolDetection Protocol = "detection" // start_detection, video_frame, stop_detection
)

// Pacing selects when the next capture runs.
type Pacing string

const (
	PacingResponse Pacing = "response" // after each response, on the next render tick
	PacingInterval Pacing = "interval" // on a fixed ticker
)

// maxReadFailures consecutive device read errors stop the session.
const maxReadFailures = 30

// defaultOrphanTimeout bounds the wait on an abandoned request when no
// response timeout is set.
const defaultOrphanTimeout = 10 * time.Second

// ErrStartAborted is returned by a Start that was overtaken by Stop or a disconnect.
var ErrStartAborted = errors.New("stream: start aborted")

// Options configures a Session.
type Options struct {
	Opener  capture.Opener
	Channel channel.Channel
	Surface surface.Surface

	// Camera supplies capture constraints and encoder settings. Read for
	// every frame so changes apply without a restart.
	Camera *camera.Manager

	Protocol        Protocol
	Pacing          Pacing
	Interval        time.Duration // interval pacing period
	MaxFPS          float64       // response pacing render rate
	ResponseTimeout time.Duration // 0 waits forever
	OrphanTimeout   time.Duration // how long a restart waits on an abandoned request, 0 uses the default
	ShowBoxes       bool
	AllowInsecure   bool

	Logger *slog.Logger

	// OnStatus is called from the session loop on every status change.
	OnStatus func(Status)

	// OnSnapshot is called from the session loop after every published change.
	OnSnapshot func(Snapshot)
}

// Counters are cumulative session statistics.
type Counters struct {
	FramesSent    uint64 `json:"frames_sent"`
	FramesDropped uint64 `json:"frames_dropped"`
	Responses     uint64 `json:"responses"`
	Errors        uint64 `json:"errors"`
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State       string               `json:"state"`
	Running     bool                 `json:"running"`
	Awaiting    bool                 `json:"awaiting"`
	Orphaned    bool                 `json:"orphaned"`
	Connected   bool                 `json:"connected"`
	Endpoint    string               `json:"endpoint"`
	Mode        capture.Mode         `json:"mode"`
	Constraints string               `json:"constraints,omitempty"`
	Protocol    Protocol             `json:"protocol"`
	Pacing      Pacing               `json:"pacing"`
	ShowBoxes   bool                 `json:"show_boxes"`
	Status      Status               `json:"status"`
	Detections  []protocol.Detection `json:"detections"`
	Summary     []LabelSummary       `json:"summary"`
	Counters    Counters             `json:"counters"`
	LastRTT     time.Duration        `json:"last_rtt_ns"`
	StartedAt   time.Time            `json:"started_at,omitempty"`
}

// Session is one frame streaming loop. All state is owned by the goroutine
// running Run; other goroutines talk to it through commands.
type Session struct {
	opts   Options
	logger *slog.Logger

	cmds     chan command
	internal chan any
	outbox   chan outbound

	mu   sync.Mutex
	done chan struct{}

	snap atomic.Pointer[Snapshot]

	// Loop-owned state below.
	machine     *fsm.FSM
	dev         capture.Device
	mode        capture.Mode
	constraints capture.Constraints
	pacer       Pacer
	connected   bool
	showBoxes   bool

	gen      uint64 // bumped on every start and stop
	seq      uint64 // last frame request
	sentAt   time.Time
	decoding bool // response for seq arrived, decode pending
	timer    *time.Timer

	orphanSeq   uint64 // request abandoned while in flight, 0 if none
	orphanTimer *time.Timer
	deferred    bool // a capture is waiting for the orphan

	starting     bool
	startCtx     context.Context
	startReply   chan error
	readFailures int

	detections []protocol.Detection
	status     Status
	counters   Counters
	lastRTT    time.Duration
	startedAt  time.Time
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdShowBoxes
)

type command struct {
	kind  commandKind
	ctx   context.Context
	on    bool
	reply chan error
}

type outbound struct {
	gen   uint64
	seq   uint64 // 0 for control messages
	msg   *protocol.Message
	frame bool
}

type (
	tickMsg struct{ gen uint64 }

	acquireResult struct {
		gen         uint64
		dev         capture.Device
		constraints capture.Constraints
		err         error
	}

	sendResult struct {
		gen uint64
		seq uint64
		err error
	}

	decodeResult struct {
		gen  uint64
		seq  uint64
		img  image.Image
		data *protocol.ProcessedFrameData
		err  error
	}

	timeoutMsg       struct{ seq uint64 }
	orphanTimeoutMsg struct{ seq uint64 }
)

// New creates a session. Commands issued before Run starts wait for it.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Protocol == "" {
		opts.Protocol = ProtocolSimple
	}
	if opts.Pacing == "" {
		opts.Pacing = PacingResponse
	}
	if opts.Camera == nil {
		opts.Camera = camera.NewManager(camera.DefaultConfig())
	}
	if opts.Surface == nil {
		opts.Surface = surface.Func{}
	}

	s := &Session{
		opts:      opts,
		logger:    opts.Logger.With("component", "stream"),
		cmds:      make(chan command),
		internal:  make(chan any, 64),
		outbox:    make(chan outbound, 16),
		showBoxes: opts.ShowBoxes,
		status:    newStatus(LevelInfo, "Idle"),
	}
	s.machine = newMachine(s.logger)
	s.publish()
	return s
}

// Snapshot returns the latest published view.
func (s *Session) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Run drives the session until ctx is cancelled. The session is stopped on exit.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			s.mu.Unlock()
			return errors.New("stream: session loop already running")
		}
	}
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()
	defer close(done)

	events, unsubscribe := s.opts.Channel.Subscribe(16)
	defer unsubscribe()

	sendCtx, cancelSend := context.WithCancel(ctx)
	defer cancelSend()
	go s.sender(sendCtx)

	s.connected = s.opts.Channel.Connected()
	metrics.SetChannelConnected(s.connected)
	s.publish()
	s.logger.Info("session loop started", "endpoint", s.opts.Channel.Endpoint(), "protocol", s.opts.Protocol, "pacing", s.opts.Pacing)

	for {
		select {
		case <-ctx.Done():
			s.stop(ctx, "Camera stopped")
			s.publish()
			s.logger.Info("session loop stopped")
			return ctx.Err()

		case cmd := <-s.cmds:
			s.handleCommand(ctx, cmd)

		case ev, ok := <-events:
			if !ok {
				s.stop(ctx, "Camera stopped")
				s.publish()
				return channel.ErrClosed
			}
			s.handleEvent(ctx, ev)

		case m := <-s.internal:
			s.handleInternal(ctx, m)
		}
		s.publish()
	}
}

// Start begins capturing. It returns once the device is open and the first
// frame has been scheduled, or with the reason it could not start.
func (s *Session) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, command{kind: cmdStart, ctx: ctx, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		// The loop abandons a start whose caller gave up, unless it already answered.
		select {
		case err := <-reply:
			return err
		default:
			return ctx.Err()
		}
	case <-s.loopDone():
		return ErrLoopNotRunning
	}
}

// Stop ends the capture session. It is safe to call in any state.
func (s *Session) Stop() {
	if s.loopDone() == nil {
		return
	}
	reply := make(chan error, 1)
	if s.send(context.Background(), command{kind: cmdStop, reply: reply}) != nil {
		return
	}
	select {
	case <-reply:
	case <-s.loopDone():
	}
}

// SetShowBoxes switches drawing of processed frames. Turning it off clears the surface.
func (s *Session) SetShowBoxes(on bool) {
	if s.loopDone() == nil {
		return
	}
	reply := make(chan error, 1)
	if s.send(context.Background(), command{kind: cmdShowBoxes, on: on, reply: reply}) != nil {
		return
	}
	select {
	case <-reply:
	case <-s.loopDone():
	}
}

func (s *Session) send(ctx context.Context, cmd command) error {
	done := s.loopDone()
	select {
	case <-done:
		return ErrLoopNotRunning
	default:
	}
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrLoopNotRunning
	}
}

func (s *Session) loopDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// post hands a helper goroutine result to the loop.
func (s *Session) post(m any) {
	select {
	case s.internal <- m:
	case <-s.loopDone():
	}
}

func (s *Session) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStart:
		if err := s.beginStart(ctx, cmd); err != nil {
			s.publish()
			cmd.reply <- err
		}
	case cmdStop:
		s.stop(ctx, "Camera stopped")
		s.publish()
		cmd.reply <- nil
	case cmdShowBoxes:
		s.showBoxes = cmd.on
		if !cmd.on {
			s.opts.Surface.Clear()
		}
		s.publish()
		cmd.reply <- nil
	}
}

// beginStart validates a start request and acquires the device in the
// background. The reply is sent when acquisition finishes.
func (s *Session) beginStart(ctx context.Context, cmd command) error {
	if s.running() || s.starting {
		return ErrAlreadyRunning
	}
	if !s.opts.AllowInsecure && !SecureEndpoint(s.opts.Channel.Endpoint()) {
		s.setStatus(LevelDanger, Describe(ErrInsecureContext))
		return ErrInsecureContext
	}
	if !s.connected && s.opts.Channel.Connected() {
		// The connect event may still be queued behind this command.
		s.connected = true
		metrics.SetChannelConnected(true)
	}
	if !s.connected {
		s.setStatus(LevelDanger, Describe(ErrChannelDisconnected))
		return ErrChannelDisconnected
	}

	s.gen++
	s.starting = true
	s.startReply = cmd.reply

	cfg := s.opts.Camera.GetConfig()
	chain := capture.Chain(cfg.Facing, cfg.Width, cfg.Height, cfg.Framerate)
	gen := s.gen
	acquireCtx := cmd.ctx
	if acquireCtx == nil {
		acquireCtx = ctx
	}
	s.startCtx = acquireCtx

	s.setStatus(LevelInfo, "Starting camera...")
	go func() {
		dev, c, err := capture.Acquire(acquireCtx, s.opts.Opener, chain, s.logger)
		s.post(acquireResult{gen: gen, dev: dev, constraints: c, err: err})
	}()
	return nil
}

func (s *Session) finishStart(ctx context.Context, r acquireResult) {
	if r.gen != s.gen || !s.starting {
		if r.dev != nil {
			_ = r.dev.Close()
		}
		return
	}
	reply := s.startReply
	startCtx := s.startCtx
	s.starting = false
	s.startReply = nil
	s.startCtx = nil

	if r.err == nil && startCtx.Err() != nil {
		s.logger.Warn("camera opened after the start was abandoned", "mode", r.dev.Mode().String())
		if err := r.dev.Close(); err != nil {
			s.logger.Warn("camera close failed", "error", err)
		}
		r.dev = nil
		r.err = startCtx.Err()
	}

	if r.err != nil {
		s.logger.Error("camera start failed", "error", r.err)
		s.setStatus(LevelDanger, Describe(r.err))
		s.publish()
		reply <- fmt.Errorf("stream: start: %w", r.err)
		return
	}

	s.dev = r.dev
	s.mode = r.dev.Mode()
	s.constraints = r.constraints
	s.readFailures = 0
	s.startedAt = time.Now()
	fire(ctx, s.machine, evStart)
	metrics.SetSessionRunning(true)

	s.logger.Info("camera started", "mode", s.mode.String(), "constraints", s.constraints.String())
	s.setStatus(LevelSuccess, "Camera started ("+s.mode.String()+")")

	if s.opts.Protocol == ProtocolDetection {
		s.enqueueControl(protocol.NewStartDetectionMessage())
	}

	s.pacer = s.newPacer()
	gen := s.gen
	s.pacer.Start(func() { s.post(tickMsg{gen: gen}) })

	s.captureAndSend(ctx)
	if s.deferred {
		s.setStatus(LevelInfo, "Camera started ("+s.mode.String()+"), waiting for the server to answer the previous frame")
	}
	s.publish()
	reply <- nil
}

func (s *Session) newPacer() Pacer {
	if s.opts.Pacing == PacingInterval {
		return NewIntervalPacer(s.opts.Interval)
	}
	return NewRenderPacer(s.opts.MaxFPS)
}

// stop tears the capture session down. It is a no-op when idle.
func (s *Session) stop(ctx context.Context, msg string) {
	if s.starting {
		s.gen++
		s.starting = false
		s.startReply <- ErrStartAborted
		s.startReply = nil
		s.startCtx = nil
	}
	if !s.running() {
		return
	}

	if s.awaiting() && !s.decoding {
		s.abandon(s.seq)
	}
	s.stopTimer()
	s.decoding = false
	s.deferred = false
	s.gen++

	if s.pacer != nil {
		s.pacer.Stop()
		s.pacer = nil
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			s.logger.Warn("camera close failed", "error", err)
		}
		s.dev = nil
	}
	s.opts.Surface.Clear()
	s.detections = nil
	fire(ctx, s.machine, evStop)
	metrics.SetSessionRunning(false)

	if s.opts.Protocol == ProtocolDetection && s.connected {
		s.enqueueControl(protocol.NewStopDetectionMessage())
	}

	s.logger.Info("camera stopped", "frames_sent", s.counters.FramesSent, "responses", s.counters.Responses)
	s.setStatus(LevelInfo, msg)
}

// captureAndSend reads, encodes and sends one frame. It does nothing unless
// the session is ready.
func (s *Session) captureAndSend(ctx context.Context) {
	if s.machine.Current() != StateReady || s.dev == nil {
		return
	}
	if s.orphanSeq != 0 {
		if !s.deferred {
			s.logger.Debug("capture deferred until the abandoned request resolves", "orphan_seq", s.orphanSeq)
		}
		s.deferred = true
		return
	}

	img, err := s.dev.Read()
	if err != nil {
		s.readFailures++
		s.drop("read")
		s.logger.Warn("frame read failed", "error", err, "consecutive", s.readFailures)
		if s.readFailures >= maxReadFailures {
			s.stop(ctx, "Camera stopped")
			s.setStatus(LevelDanger, "Camera stopped: "+capture.Describe(err))
			return
		}
		s.pacer.Next()
		return
	}
	s.readFailures = 0

	dataURL, err := s.opts.Camera.GetConfig().Encoder().EncodeDataURL(img)
	if err != nil {
		s.drop("encode")
		s.logger.Warn("frame encode failed", "error", fmt.Errorf("%w: %v", ErrEncode, err))
		s.pacer.Next()
		return
	}

	var msg *protocol.Message
	if s.opts.Protocol == ProtocolDetection {
		msg, err = protocol.NewVideoFrameMessage(dataURL)
	} else {
		msg, err = protocol.NewProcessFrameMessage(dataURL)
	}
	if err != nil {
		s.drop("encode")
		s.logger.Warn("frame message failed", "error", err)
		s.pacer.Next()
		return
	}

	fire(ctx, s.machine, evSend)
	s.seq++
	s.sentAt = time.Now()
	s.armTimer(s.seq)

	select {
	case s.outbox <- outbound{gen: s.gen, seq: s.seq, msg: msg, frame: true}:
	default:
		s.failSend(ctx, errors.New("stream: outbox full"))
	}
}

// failSend drops the in-flight frame and moves on to a fresh one.
func (s *Session) failSend(ctx context.Context, err error) {
	s.stopTimer()
	s.drop("send")
	s.logger.Warn("frame send failed", "seq", s.seq, "error", err)
	fire(ctx, s.machine, evResolve)
	s.pacer.Next()
}

func (s *Session) drop(reason string) {
	s.counters.FramesDropped++
	metrics.RecordDrop(reason)
}

func (s *Session) enqueueControl(msg *protocol.Message, err error) {
	if err != nil {
		s.logger.Warn("control message failed", "error", err)
		return
	}
	select {
	case s.outbox <- outbound{gen: s.gen, msg: msg}:
	default:
		s.logger.Warn("outbox full, control message dropped", "type", msg.Type)
	}
}

// sender writes queued messages in order so control messages never overtake frames.
func (s *Session) sender(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-s.outbox:
			err := s.opts.Channel.Send(ctx, out.msg)
			if !out.frame {
				if err != nil {
					s.logger.Warn("control message not sent", "type", out.msg.Type, "error", err)
				}
				continue
			}
			s.post(sendResult{gen: out.gen, seq: out.seq, err: err})
		}
	}
}

func (s *Session) handleInternal(ctx context.Context, m any) {
	switch m := m.(type) {
	case acquireResult:
		s.finishStart(ctx, m)

	case tickMsg:
		if m.gen != s.gen {
			return
		}
		s.captureAndSend(ctx)

	case sendResult:
		s.onSendResult(ctx, m)

	case decodeResult:
		s.onDecoded(ctx, m)

	case timeoutMsg:
		if m.seq != s.seq || !s.awaiting() || s.decoding {
			return
		}
		s.logger.Warn("response timeout", "seq", m.seq, "timeout", s.opts.ResponseTimeout)
		s.counters.Errors++
		metrics.RecordResponse("timeout", 0)
		s.setStatus(LevelDanger, Describe(ErrResponseTimeout))
		// The late response may still arrive; it must not be taken for the next frame.
		s.abandon(m.seq)
		fire(ctx, s.machine, evResolve)
		s.captureAndSend(ctx)

	case orphanTimeoutMsg:
		if m.seq != s.orphanSeq {
			return
		}
		s.logger.Warn("abandoned request never answered", "seq", m.seq)
		s.clearOrphan(ctx)
	}
}

func (s *Session) onSendResult(ctx context.Context, r sendResult) {
	if r.err == nil {
		s.counters.FramesSent++
		metrics.RecordSend()
		return
	}

	// A frame that never left cannot be answered.
	if r.seq == s.orphanSeq {
		s.drop("send")
		s.clearOrphan(ctx)
		return
	}
	if r.gen != s.gen || r.seq != s.seq || !s.awaiting() || s.decoding {
		return
	}
	s.setStatus(LevelDanger, Describe(r.err))
	s.failSend(ctx, r.err)
}

// abandon remembers seq as orphaned: its response, if any, is discarded.
func (s *Session) abandon(seq uint64) {
	s.orphanSeq = seq
	s.stopTimer()
	metrics.RecordDrop("orphaned")
	s.counters.FramesDropped++
	if s.orphanTimer != nil {
		s.orphanTimer.Stop()
	}
	s.orphanTimer = time.AfterFunc(s.orphanTimeout(), func() {
		s.post(orphanTimeoutMsg{seq: seq})
	})
}

func (s *Session) orphanTimeout() time.Duration {
	switch {
	case s.opts.OrphanTimeout > 0:
		return s.opts.OrphanTimeout
	case s.opts.ResponseTimeout > 0:
		return s.opts.ResponseTimeout
	}
	return defaultOrphanTimeout
}

// clearOrphan forgets the orphan and runs a deferred capture.
func (s *Session) clearOrphan(ctx context.Context) {
	if s.orphanSeq == 0 {
		return
	}
	s.orphanSeq = 0
	if s.orphanTimer != nil {
		s.orphanTimer.Stop()
		s.orphanTimer = nil
	}
	if s.deferred {
		s.deferred = false
		s.captureAndSend(ctx)
	}
}

func (s *Session) armTimer(seq uint64) {
	s.stopTimer()
	if s.opts.ResponseTimeout <= 0 {
		return
	}
	s.timer = time.AfterFunc(s.opts.ResponseTimeout, func() {
		s.post(timeoutMsg{seq: seq})
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) handleEvent(ctx context.Context, ev channel.Event) {
	switch ev.Kind {
	case channel.EventConnect:
		s.connected = true
		metrics.SetChannelConnected(true)
		s.setStatus(LevelSuccess, "Connected to server")

	case channel.EventDisconnect:
		s.connected = false
		metrics.SetChannelConnected(false)
		s.logger.Warn("channel disconnected", "error", ev.Err)
		s.stop(ctx, "Camera stopped")
		// Nothing sent before the drop will be answered.
		s.deferred = false
		s.clearOrphan(ctx)
		s.setStatus(LevelDanger, "Disconnected from server")

	case channel.EventError:
		s.onChannelError(ctx, ev.Err)

	case channel.EventMessage:
		s.handleMessage(ctx, ev.Message)
	}
}

// onChannelError unblocks the loop without stopping the session.
func (s *Session) onChannelError(ctx context.Context, err error) {
	s.reportError(err)
	if s.awaiting() && !s.decoding {
		s.stopTimer()
		metrics.RecordResponse("error", time.Since(s.sentAt))
		fire(ctx, s.machine, evResolve)
		s.pacer.Next()
	}
}

func (s *Session) reportError(err error) {
	s.counters.Errors++
	s.logger.Warn("channel error", "error", err)
	s.setStatus(LevelDanger, Describe(err))
}

func (s *Session) handleMessage(ctx context.Context, msg *protocol.Message) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case protocol.TypeProcessedFrame:
		s.onResponse(ctx, msg)

	case protocol.TypeError:
		text := "unknown error"
		if data, err := msg.GetErrorData(); err == nil && data.Message != "" {
			text = data.Message
		}
		err := &ServerError{Message: text}
		// An error answers the oldest outstanding request, same as a frame.
		if s.orphanSeq != 0 {
			s.reportError(err)
			s.clearOrphan(ctx)
			return
		}
		s.onChannelError(ctx, err)

	case protocol.TypeStatus:
		if data, err := msg.GetStatusData(); err == nil && data.Status != "" {
			s.setStatus(LevelInfo, data.Status)
		}

	default:
		s.logger.Debug("ignoring message", "type", msg.Type)
	}
}

// onResponse matches a processed frame to the oldest outstanding request.
func (s *Session) onResponse(ctx context.Context, msg *protocol.Message) {
	if s.orphanSeq != 0 {
		s.logger.Debug("discarding response to abandoned request", "seq", s.orphanSeq)
		metrics.RecordResponse("orphaned", 0)
		s.clearOrphan(ctx)
		return
	}
	if !s.awaiting() || s.decoding {
		s.logger.Debug("unsolicited processed frame")
		return
	}

	s.stopTimer()
	s.decoding = true
	rtt := time.Since(s.sentAt)
	s.lastRTT = rtt

	data, err := msg.GetProcessedFrame()
	if err != nil {
		s.post(decodeResult{gen: s.gen, seq: s.seq, err: err})
		return
	}

	gen, seq, draw := s.gen, s.seq, s.showBoxes
	go func() {
		r := decodeResult{gen: gen, seq: seq, data: data}
		if draw {
			r.img, r.err = frame.DecodeURL(data.Image)
		}
		s.post(r)
	}()
}

func (s *Session) onDecoded(ctx context.Context, r decodeResult) {
	if r.gen != s.gen || r.seq != s.seq || !s.decoding {
		return
	}
	s.decoding = false
	s.counters.Responses++

	if r.err != nil {
		s.counters.Errors++
		metrics.RecordResponse("decode_error", s.lastRTT)
		s.logger.Warn("processed frame decode failed", "error", r.err)
	} else {
		metrics.RecordResponse("ok", s.lastRTT)
		if r.img != nil && s.showBoxes {
			if err := s.opts.Surface.Draw(r.img); err != nil {
				s.logger.Warn("draw failed", "error", err)
			}
		}
		if r.data != nil && !r.data.Bare {
			s.detections = r.data.Detections
			labels := make([]string, len(s.detections))
			for i, d := range s.detections {
				labels[i] = d.Label
			}
			metrics.RecordDetections(labels)
		}
	}

	fire(ctx, s.machine, evResolve)
	s.pacer.Next()
}

func (s *Session) running() bool {
	return s.machine.Current() != StateIdle
}

func (s *Session) awaiting() bool {
	return s.machine.Current() == StateAwaiting
}

func (s *Session) setStatus(level Level, msg string) {
	s.status = newStatus(level, msg)
	if s.opts.OnStatus != nil {
		s.opts.OnStatus(s.status)
	}
}

func (s *Session) publish() {
	dets := make([]protocol.Detection, len(s.detections))
	copy(dets, s.detections)
	snap := &Snapshot{
		State:      s.machine.Current(),
		Running:    s.running(),
		Awaiting:   s.awaiting(),
		Orphaned:   s.orphanSeq != 0,
		Connected:  s.connected,
		Endpoint:   s.endpoint(),
		Mode:       s.mode,
		Protocol:   s.opts.Protocol,
		Pacing:     s.opts.Pacing,
		ShowBoxes:  s.showBoxes,
		Status:     s.status,
		Detections: dets,
		Summary:    Summarize(dets),
		Counters:   s.counters,
		LastRTT:    s.lastRTT,
		StartedAt:  s.startedAt,
	}
	if snap.Running {
		snap.Constraints = s.constraints.String()
	} else {
		snap.Mode = capture.Mode{}
		snap.StartedAt = time.Time{}
	}
	s.snap.Store(snap)
	if s.opts.OnSnapshot != nil {
		s.opts.OnSnapshot(*snap)
	}
}

func (s *Session) endpoint() string {
	if s.opts.Channel == nil {
		return ""
	}
	return s.opts.Channel.Endpoint()
}

// SecureEndpoint reports whether frames may be streamed to rawURL:
// wss anywhere, ws only to a loopback host.
func SecureEndpoint(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "wss", "https":
		return true
	case "ws", "http":
		host := u.Hostname()
		if host == "localhost" {
			return true
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	default:
		return false
	}
}
