package workout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fatih/stopwatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanohr/nanofit/pkg/tracker"
)

type fakeSource struct {
	mu   sync.Mutex
	snap tracker.TelemetrySnapshot
}

func (s *fakeSource) Snapshot() tracker.TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSource) setHeartRate(bpm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.HeartRateBPM = &bpm
}

func (s *fakeSource) setSteps(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CumulativeSteps = &v
}

type fakeMotion struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (m *fakeMotion) StartIMUSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
}

func (m *fakeMotion) StopIMUSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

type fakeSaver struct {
	mu     sync.Mutex
	err    error
	saved  []Session
	userID string
}

func (s *fakeSaver) Save(_ context.Context, userID string, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.userID = userID
	s.saved = append(s.saved, session)
	return nil
}

func newTestRecorder(options ...func(*Recorder)) (*Recorder, *fakeSource, *fakeMotion) {
	src := &fakeSource{}
	motion := &fakeMotion{}
	options = append([]func(*Recorder){WithSampleInterval(5 * time.Millisecond)}, options...)
	return NewRecorder(src, motion, options...), src, motion
}

func TestStartWorkoutTwiceFails(t *testing.T) {
	r, _, _ := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	assert.Error(t, r.StartWorkout())

	_, err := r.EndWorkout()
	require.NoError(t, err)
}

func TestActivityRequiresWorkout(t *testing.T) {
	r, _, _ := newTestRecorder()

	assert.Error(t, r.StartActivity(Running))
	_, err := r.EndActivity()
	assert.Error(t, err)
	_, err = r.EndWorkout()
	assert.Error(t, err)
}

func TestStartActivityRejectsUnknownType(t *testing.T) {
	r, _, _ := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	assert.Error(t, r.StartActivity(ActivityType("swimming")))
}

func TestCyclingNeverCarriesSteps(t *testing.T) {
	r, src, motion := newTestRecorder()
	src.setSteps(9999)

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Cycling))

	entry, err := r.EndActivity()
	require.NoError(t, err)

	assert.Nil(t, entry.Steps, "non-step activity must carry a nil step count")
	assert.Equal(t, 0, motion.starts, "cycling must not start the IMU")
}

func TestRunningRecordsStepDelta(t *testing.T) {
	r, src, motion := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Running))

	// The firmware zeroed its counter at IMU start; it now reads 500
	src.setSteps(500)

	entry, err := r.EndActivity()
	require.NoError(t, err)

	require.NotNil(t, entry.Steps)
	assert.Equal(t, int64(500), *entry.Steps)
	assert.Equal(t, 1, motion.starts)
	assert.Equal(t, 1, motion.stops)
}

func TestNegativeStepDeltaIsClamped(t *testing.T) {
	r, src, _ := newTestRecorder()
	src.setSteps(40)

	// A non-zero baseline only occurs when the firmware fails to reset
	// its counter at IMU start; the delta must never go negative then
	r.mu.Lock()
	r.active = true
	r.cur = &segment{
		typ:          Running,
		watch:        stopwatch.Start(0),
		trackSteps:   true,
		stepBaseline: 100,
	}
	entry := r.endActivity()
	r.mu.Unlock()

	require.NotNil(t, entry.Steps)
	assert.Equal(t, int64(0), *entry.Steps, "negative delta must be clamped to zero")
}

func TestHeartRateSampling(t *testing.T) {
	r, src, _ := newTestRecorder()
	src.setHeartRate(80)

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))

	time.Sleep(50 * time.Millisecond)

	entry, err := r.EndActivity()
	require.NoError(t, err)

	require.NotNil(t, entry.AvgHeartRate)
	assert.Equal(t, 80, *entry.AvgHeartRate)
}

func TestPausedActivityCollectsNoSamples(t *testing.T) {
	r, src, _ := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))
	require.NoError(t, r.PauseActivity())

	src.setHeartRate(100)
	time.Sleep(50 * time.Millisecond)

	entry, err := r.EndActivity()
	require.NoError(t, err)

	assert.Nil(t, entry.AvgHeartRate, "paused activity must not collect samples")
}

func TestPausedTailNotCountedAsDuration(t *testing.T) {
	r, _, _ := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.PauseActivity())

	// Long enough that an erroneously counted pause shows up in whole
	// seconds
	time.Sleep(1100 * time.Millisecond)

	entry, err := r.EndActivity()
	require.NoError(t, err)

	assert.Equal(t, int64(0), entry.DurationSeconds, "paused time must not accrue")
}

func TestEndWorkoutClosesPausedSegmentFrozen(t *testing.T) {
	r, _, _ := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))
	require.NoError(t, r.PauseActivity())

	time.Sleep(1100 * time.Millisecond)

	sess, err := r.EndWorkout()
	require.NoError(t, err)

	require.Len(t, sess.Activities, 1)
	assert.Equal(t, int64(0), sess.Activities[0].DurationSeconds)
}

func TestZeroHeartRateIsNotSampled(t *testing.T) {
	r, src, _ := newTestRecorder()
	src.setHeartRate(0)

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))

	time.Sleep(50 * time.Millisecond)

	entry, err := r.EndActivity()
	require.NoError(t, err)

	assert.Nil(t, entry.AvgHeartRate, "zero readings mean no sensor contact")
}

func TestStartActivityEndsOpenSegment(t *testing.T) {
	r, _, _ := newTestRecorder()

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))
	require.NoError(t, r.StartActivity(Weightlifting))

	sess, err := r.EndWorkout()
	require.NoError(t, err)

	require.Len(t, sess.Activities, 2)
	assert.Equal(t, Yoga, sess.Activities[0].Type)
	assert.Equal(t, Weightlifting, sess.Activities[1].Type)
}

func TestEndWorkoutPersistsBestEffort(t *testing.T) {
	saver := &fakeSaver{}
	r, _, _ := newTestRecorder(WithSaver(saver, "user-1"))

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))

	sess, err := r.EndWorkout()
	require.NoError(t, err)

	require.Len(t, saver.saved, 1)
	assert.Equal(t, "user-1", saver.userID)
	assert.Equal(t, sess.ID, saver.saved[0].ID)
}

func TestEndWorkoutSwallowsSaveFailure(t *testing.T) {
	saver := &fakeSaver{err: errors.New("remote unavailable")}
	r, _, _ := newTestRecorder(WithSaver(saver, "user-1"))

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))

	sess, err := r.EndWorkout()
	require.NoError(t, err, "a failed save must not fail the workout")
	require.NotNil(t, sess)

	// The local history keeps the session regardless
	assert.Len(t, r.History(), 1)
}

func TestEndWorkoutComputesCalories(t *testing.T) {
	r, _, _ := newTestRecorder(WithUserWeight(70))

	require.NoError(t, r.StartWorkout())
	require.NoError(t, r.StartActivity(Yoga))

	sess, err := r.EndWorkout()
	require.NoError(t, err)

	require.NotNil(t, sess.CaloriesKcal)
	assert.NotEmpty(t, sess.RecoveryTechniques)
}

func TestSummarizeAggregation(t *testing.T) {
	hr140, hr110 := 140, 110
	steps500 := int64(500)

	duration, avgHR, totalSteps := Summarize([]ActivityEntry{
		{Type: Running, DurationSeconds: 300, AvgHeartRate: &hr140, Steps: &steps500},
		{Type: Weightlifting, DurationSeconds: 600, AvgHeartRate: &hr110},
	})

	assert.Equal(t, int64(900), duration)
	require.NotNil(t, avgHR)
	assert.Equal(t, 125, *avgHR)
	require.NotNil(t, totalSteps)
	assert.Equal(t, int64(500), *totalSteps, "nil steps contribute nothing, not zero")
}

func TestSummarizeEmptyOptionals(t *testing.T) {
	duration, avgHR, totalSteps := Summarize([]ActivityEntry{
		{Type: Yoga, DurationSeconds: 60},
		{Type: Cycling, DurationSeconds: 120},
	})

	assert.Equal(t, int64(180), duration)
	assert.Nil(t, avgHR)
	assert.Nil(t, totalSteps, "no step-recording activity means no total, not zero")
}
