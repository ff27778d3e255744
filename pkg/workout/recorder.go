package workout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fatih/stopwatch"
	"github.com/google/uuid"
	"github.com/nanohr/nanofit/pkg/tracker"
)

const defaultSampleInterval = time.Second

// TelemetrySource provides the latest telemetry snapshot
type TelemetrySource interface {
	Snapshot() tracker.TelemetrySnapshot
}

// MotionController toggles the peripheral's step-counting mode
type MotionController interface {
	StartIMUSession()
	StopIMUSession()
}

// Saver persists completed sessions. Failures are swallowed by the
// recorder; persistence is best-effort.
type Saver interface {
	Save(ctx context.Context, userID string, session Session) error
}

// Recorder converts the telemetry stream plus activity boundaries into
// immutable workout records. A workout consists of one or more activity
// segments; the legacy single-activity flow is simply a workout with a
// single segment.
type Recorder struct {
	src    TelemetrySource
	motion MotionController
	log    tracker.Logger

	weightKg       float64
	saver          Saver
	userID         string
	sampleInterval time.Duration

	mu           sync.Mutex
	workoutStart time.Time
	entries      []ActivityEntry
	cur          *segment
	history      []Session
	tickStop     chan struct{}
	active       bool
}

// segment is the in-flight state of one activity
type segment struct {
	typ       ActivityType
	watch     *stopwatch.Stopwatch
	paused    bool
	hrSamples []int

	// stepBaseline is the firmware counter value at segment start. The
	// peripheral resets its counter to zero whenever the IMU starts, so
	// the baseline is zero for step-tracking types. If that firmware
	// contract is ever violated the delta goes negative and is clamped.
	stepBaseline int64
	trackSteps   bool
}

// WithRecorderLogger sets the logger used by the recorder
func WithRecorderLogger(logger tracker.Logger) func(*Recorder) {
	return func(r *Recorder) {
		r.log = logger
	}
}

// WithUserWeight sets the user weight used for calorie estimation
func WithUserWeight(weightKg float64) func(*Recorder) {
	return func(r *Recorder) {
		r.weightKg = weightKg
	}
}

// WithSaver sets the persistence collaborator receiving completed sessions
func WithSaver(saver Saver, userID string) func(*Recorder) {
	return func(r *Recorder) {
		r.saver = saver
		r.userID = userID
	}
}

// WithSampleInterval overrides the heart rate sampling interval (1s by
// default; tests shorten it)
func WithSampleInterval(interval time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		if interval > 0 {
			r.sampleInterval = interval
		}
	}
}

// NewRecorder instantiates a new Recorder on the given telemetry source and
// motion controller, executing functional options, if any
func NewRecorder(src TelemetrySource, motion MotionController, options ...func(*Recorder)) *Recorder {

	r := &Recorder{
		src:            src,
		motion:         motion,
		log:            &tracker.NullLogger{},
		sampleInterval: defaultSampleInterval,
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// StartWorkout begins a new workout
func (r *Recorder) StartWorkout() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return errors.New("a workout is already running")
	}

	r.active = true
	r.workoutStart = time.Now()
	r.entries = nil
	r.cur = nil

	stop := make(chan struct{})
	r.tickStop = stop
	go r.sampleLoop(stop)

	return nil
}

// StartActivity begins a new activity segment, implicitly ending any open
// one. Step-tracking types start the peripheral's IMU, which zeroes the
// firmware step counter.
func (r *Recorder) StartActivity(typ ActivityType) error {
	if !typ.Valid() {
		return errors.New("unknown activity type: " + string(typ))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return errors.New("no workout is running")
	}

	if r.cur != nil {
		r.endActivity()
	}

	if typ.TracksSteps() {
		r.motion.StartIMUSession()
	}

	r.cur = &segment{
		typ:        typ,
		watch:      stopwatch.Start(0),
		trackSteps: typ.TracksSteps(),
	}

	r.log.Debugf("activity started: %s", typ)
	return nil
}

// PauseActivity freezes the elapsed-time clock of the open segment. Live
// telemetry keeps flowing; only time accrual and sampling stop.
func (r *Recorder) PauseActivity() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil {
		return errors.New("no activity is running")
	}
	if !r.cur.paused {
		r.cur.watch.Stop()
		r.cur.paused = true
	}
	return nil
}

// ResumeActivity resumes a paused segment
func (r *Recorder) ResumeActivity() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil {
		return errors.New("no activity is running")
	}
	if r.cur.paused {
		r.cur.watch.Start(0)
		r.cur.paused = false
	}
	return nil
}

// EndActivity completes the open segment and materializes its entry
func (r *Recorder) EndActivity() (*ActivityEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil {
		return nil, errors.New("no activity is running")
	}

	entry := r.endActivity()
	return &entry, nil
}

// EndWorkout completes the workout, implicitly ending any open segment,
// and hands the finished session to the persistence collaborator
// (best-effort; a failed save never fails the workout).
func (r *Recorder) EndWorkout() (*Session, error) {
	r.mu.Lock()

	if !r.active {
		r.mu.Unlock()
		return nil, errors.New("no workout is running")
	}

	if r.cur != nil {
		r.endActivity()
	}

	close(r.tickStop)
	r.tickStop = nil
	r.active = false

	duration, avgHR, totalSteps := Summarize(r.entries)

	sess := Session{
		ID:              uuid.NewString(),
		StartedAtMillis: r.workoutStart.UnixMilli(),
		DurationSeconds: duration,
		AvgHeartRate:    avgHR,
		TotalSteps:      totalSteps,
		Activities:      r.entries,
		RecoveryTechniques: SuggestRecovery(
			r.entries, avgHR, duration, totalSteps,
		),
	}
	if r.weightKg > 0 {
		kcal := EstimateCalories(r.entries, r.weightKg)
		sess.CaloriesKcal = &kcal
	}

	r.entries = nil
	r.history = append(r.history, sess)

	saver, userID := r.saver, r.userID
	r.mu.Unlock()

	if saver != nil {
		if err := saver.Save(context.Background(), userID, sess); err != nil {
			r.log.Warnf("failed to persist workout session %s: %s", sess.ID, err)
		}
	}

	r.log.Infof("workout completed: %ds, %d activities", sess.DurationSeconds, len(sess.Activities))
	return &sess, nil
}

// History returns the completed sessions of this process, oldest first
func (r *Recorder) History() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := make([]Session, len(r.history))
	copy(history, r.history)
	return history
}

// endActivity materializes the open segment (caller must hold mu)
func (r *Recorder) endActivity() ActivityEntry {
	seg := r.cur
	r.cur = nil

	// A paused watch already holds its stop timestamp; stopping it again
	// would count the paused tail as active time
	if !seg.paused {
		seg.watch.Stop()
	}

	entry := ActivityEntry{
		ID:              uuid.NewString(),
		Type:            seg.typ,
		DurationSeconds: int64(seg.watch.ElapsedTime() / time.Second),
	}

	if len(seg.hrSamples) > 0 {
		sum := 0
		for _, v := range seg.hrSamples {
			sum += v
		}
		avg := sum / len(seg.hrSamples)
		entry.AvgHeartRate = &avg
	}

	if seg.trackSteps {
		var current int64
		if snap := r.src.Snapshot(); snap.CumulativeSteps != nil {
			current = int64(*snap.CumulativeSteps)
		}
		delta := current - seg.stepBaseline
		if delta < 0 {
			// Breach of the IMU-reset firmware contract; record zero
			// rather than a negative count
			r.log.Warnf("negative step delta %d for %s activity, clamping to zero", delta, seg.typ)
			delta = 0
		}
		entry.Steps = &delta

		r.motion.StopIMUSession()
	}

	r.entries = append(r.entries, entry)
	r.log.Debugf("activity completed: %s, %ds", entry.Type, entry.DurationSeconds)
	return entry
}

// sampleLoop appends one heart rate sample per interval to the running,
// unpaused segment. Positive readings only; a zero reading means the
// sensor has no contact.
func (r *Recorder) sampleLoop(stop chan struct{}) {
	ticker := time.NewTicker(r.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := r.src.Snapshot()

			r.mu.Lock()
			if r.cur != nil && !r.cur.paused &&
				snap.HeartRateBPM != nil && *snap.HeartRateBPM > 0 {
				r.cur.hrSamples = append(r.cur.hrSamples, *snap.HeartRateBPM)
			}
			r.mu.Unlock()
		}
	}
}
