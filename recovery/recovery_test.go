package recovery

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatfix/bootsector"
)

// fakeStore is an in-memory sector.Store that records the order of
// operations and can be told to silently drop writes, imitating flaky
// flash media.
type fakeStore struct {
	data      []byte
	size      int64
	events    []string
	dropWrite bool
}

func newFakeStore(size int64) *fakeStore {
	return &fakeStore{data: make([]byte, 512), size: size}
}

func (s *fakeStore) ReadSectors(index, count int64) ([]byte, error) {
	if index != 0 || count != 1 {
		return nil, fmt.Errorf("unexpected read of %d sectors at %d", count, index)
	}
	out := make([]byte, 512)
	copy(out, s.data)
	return out, nil
}

func (s *fakeStore) WriteSectors(index int64, data []byte) error {
	s.events = append(s.events, "write")
	if s.dropWrite {
		return nil
	}
	copy(s.data, data)
	return nil
}

func (s *fakeStore) Size() int64     { return s.size }
func (s *fakeStore) SectorSize() int { return 512 }
func (s *fakeStore) Close() error    { return nil }

func recordingBackup(st *fakeStore, captured *[]byte) BackupFunc {
	return func(raw []byte) error {
		st.events = append(st.events, "backup")
		*captured = append([]byte(nil), raw...)
		return nil
	}
}

func TestAnalyzeCorrupt(t *testing.T) {
	st := newFakeStore(1 << 20)
	sess := New(st)

	a, err := sess.Analyze()
	require.NoError(t, err)
	assert.True(t, a.RecoveryNeeded)
	assert.NotEmpty(t, a.Findings)
	assert.Equal(t, int64(1<<20), a.DiskSize)
	assert.Len(t, a.Raw, 512)
}

func TestAnalyzeHealthy(t *testing.T) {
	st := newFakeStore(1 << 20)
	good, err := bootsector.Synthesize(bootsector.Info{}, 1<<20)
	require.NoError(t, err)
	copy(st.data, bootsector.Encode(good))

	sess := New(st)
	a, err := sess.Analyze()
	require.NoError(t, err)
	assert.False(t, a.RecoveryNeeded)

	_, err = sess.Repair()
	assert.ErrorIs(t, err, ErrNothingToRepair)
}

func TestRepairRequiresAnalyze(t *testing.T) {
	sess := New(newFakeStore(1 << 20))
	_, err := sess.Repair()
	assert.ErrorIs(t, err, ErrNotAnalyzed)
}

func TestRepairBacksUpBeforeWrite(t *testing.T) {
	st := newFakeStore(1 << 20)
	var backedUp []byte
	sess := New(st, WithBackup(recordingBackup(st, &backedUp)))

	_, err := sess.Analyze()
	require.NoError(t, err)

	res, err := sess.Repair()
	require.NoError(t, err)

	require.Equal(t, []string{"backup", "write"}, st.events)
	assert.Equal(t, make([]byte, 512), backedUp)

	// The medium now holds the verified replacement.
	assert.True(t, bytes.Equal(res.Raw, st.data))
	info, err := bootsector.Decode(st.data)
	require.NoError(t, err)
	assert.True(t, bootsector.IsValid(bootsector.Validate(info, st.size)))
	assert.Equal(t, res.Info, info)
}

func TestRepairWithoutBackup(t *testing.T) {
	st := newFakeStore(1 << 20)
	sess := New(st)

	_, err := sess.Analyze()
	require.NoError(t, err)

	_, err = sess.Repair()
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindBackupFailed, rerr.Kind)
	assert.Empty(t, st.events)
	assert.Equal(t, make([]byte, 512), st.data)
}

func TestRepairAbortsOnBackupError(t *testing.T) {
	st := newFakeStore(1 << 20)
	boom := errors.New("disk full")
	sess := New(st, WithBackup(func([]byte) error { return boom }))

	_, err := sess.Analyze()
	require.NoError(t, err)

	_, err = sess.Repair()
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindBackupFailed, rerr.Kind)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, st.events, "no write may happen after a failed backup")
}

func TestRepairUnsolvable(t *testing.T) {
	// A 4 KiB device has no consistent FAT geometry at all.
	st := newFakeStore(4096)
	sess := New(st, WithBackup(func([]byte) error { return nil }))

	_, err := sess.Analyze()
	require.NoError(t, err)

	_, err = sess.Repair()
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindUnsolvable, rerr.Kind)
	assert.ErrorIs(t, err, bootsector.ErrUnsolvable)
	assert.NotContains(t, st.events, "write")
}

func TestRepairVerificationFailure(t *testing.T) {
	st := newFakeStore(1 << 20)
	st.dropWrite = true
	sess := New(st, WithBackup(func([]byte) error { return nil }))

	_, err := sess.Analyze()
	require.NoError(t, err)

	_, err = sess.Repair()
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindVerificationFailed, rerr.Kind)
	assert.NotEmpty(t, rerr.Findings, "the operator needs the residual findings")
}

func TestDiskSizeHint(t *testing.T) {
	st := newFakeStore(0)
	sess := New(st, WithDiskSizeHint(8<<20))

	a, err := sess.Analyze()
	require.NoError(t, err)
	assert.Equal(t, int64(8<<20), a.DiskSize)
}

func TestAnalyzeRefreshes(t *testing.T) {
	st := newFakeStore(1 << 20)
	var backedUp []byte
	sess := New(st, WithBackup(recordingBackup(st, &backedUp)))

	_, err := sess.Analyze()
	require.NoError(t, err)
	_, err = sess.Repair()
	require.NoError(t, err)

	a, err := sess.Analyze()
	require.NoError(t, err)
	assert.False(t, a.RecoveryNeeded)
	_, err = sess.Repair()
	assert.ErrorIs(t, err, ErrNothingToRepair)
}
