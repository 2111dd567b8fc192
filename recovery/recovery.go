// Package recovery orchestrates boot sector analysis and repair over a
// sector.Store: read, decode, validate, and on request back up, rewrite
// and verify. It performs no user interaction and no file I/O of its own;
// backups go through a caller-supplied callback.
package recovery

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"fatfix/bootsector"
	"fatfix/sector"
)

// Kind discriminates recovery failures.
type Kind int

const (
	KindUnsolvable Kind = iota
	KindBackupFailed
	KindVerificationFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnsolvable:
		return "unsolvable"
	case KindBackupFailed:
		return "backup failed"
	default:
		return "verification failed"
	}
}

// Error is a failed recovery attempt. For verification failures, Findings
// carries the checks the rewritten sector still fails, so the operator
// can decide on manual intervention.
type Error struct {
	Kind     Kind
	Findings []bootsector.Finding
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("recovery %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("recovery %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotAnalyzed is returned by Repair when Analyze has not run yet.
var ErrNotAnalyzed = errors.New("volume has not been analyzed")

// ErrNothingToRepair is returned by Repair when the last analysis found
// the boot sector valid.
var ErrNothingToRepair = errors.New("boot sector is valid, nothing to repair")

// BackupFunc receives the raw original boot sector before any write is
// issued. A nil or failing backup aborts the repair.
type BackupFunc func(raw []byte) error

// Option configures a Session.
type Option func(*Session)

// WithBackup supplies the backup collaborator. Repair refuses to write
// without one.
func WithBackup(fn BackupFunc) Option {
	return func(s *Session) { s.backup = fn }
}

// WithDiskSizeHint overrides the store's own size estimate, for devices
// whose size detection is unreliable.
func WithDiskSizeHint(n int64) Option {
	return func(s *Session) { s.sizeHint = n }
}

// Session is a single-volume recovery session. It is not safe for
// concurrent use; boot sector repair is a short, operator-driven
// sequence, and the backup, write and verification steps depend on each
// other's side effects in strict order.
type Session struct {
	store    sector.Store
	backup   BackupFunc
	sizeHint int64
	analysis *Analysis
}

// Analysis is the read-only result of inspecting sector 0.
type Analysis struct {
	Info           bootsector.Info
	Findings       []bootsector.Finding
	RecoveryNeeded bool
	Raw            []byte
	DiskSize       int64
}

// RepairResult is the verified outcome of a rewrite.
type RepairResult struct {
	Info     bootsector.Info
	Findings []bootsector.Finding
	Raw      []byte
}

// New creates a session over the given store.
func New(store sector.Store, opts ...Option) *Session {
	s := &Session{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze reads and validates the boot sector. It never mutates the
// device and may be called again to refresh the session state.
func (s *Session) Analyze() (*Analysis, error) {
	raw, err := s.store.ReadSectors(0, 1)
	if err != nil {
		return nil, fmt.Errorf("read boot sector: %w", err)
	}
	// Stores with logical sectors above 512 bytes still hold the boot
	// record in the first 512.
	if len(raw) > bootsector.SectorSize {
		raw = raw[:bootsector.SectorSize]
	}

	info, err := bootsector.Decode(raw)
	if err != nil {
		return nil, err
	}

	size := s.sizeHint
	if size <= 0 {
		size = s.store.Size()
	}
	findings := bootsector.Validate(info, size)

	a := &Analysis{
		Info:           info,
		Findings:       findings,
		RecoveryNeeded: !bootsector.IsValid(findings),
		Raw:            raw,
		DiskSize:       size,
	}
	s.analysis = a

	log.WithFields(log.Fields{
		"fat_type":        info.Type,
		"total_sectors":   info.TotalSectors(),
		"findings":        len(findings),
		"recovery_needed": a.RecoveryNeeded,
	}).Debug("boot sector analyzed")
	return a, nil
}

// Repair synthesizes a replacement boot sector, writes it and verifies
// the result. Preconditions: Analyze has run and reported
// RecoveryNeeded. The original sector is handed to the backup
// collaborator first; without a successful backup acknowledgment no
// write is issued. A failed verification is reported, never retried.
func (s *Session) Repair() (*RepairResult, error) {
	if s.analysis == nil {
		return nil, ErrNotAnalyzed
	}
	if !s.analysis.RecoveryNeeded {
		return nil, ErrNothingToRepair
	}

	if s.backup == nil {
		return nil, &Error{Kind: KindBackupFailed, Err: errors.New("no backup collaborator configured")}
	}
	if err := s.backup(s.analysis.Raw); err != nil {
		return nil, &Error{Kind: KindBackupFailed, Err: err}
	}
	log.Debug("original boot sector backed up")

	repaired, err := bootsector.Synthesize(s.analysis.Info, s.analysis.DiskSize)
	if err != nil {
		return nil, &Error{Kind: KindUnsolvable, Err: err}
	}
	log.WithFields(log.Fields{
		"fat_type":      repaired.Type,
		"total_sectors": repaired.TotalSectors(),
		"cluster_count": repaired.ClusterCount(),
	}).Debug("replacement boot sector synthesized")

	if err := s.store.WriteSectors(0, bootsector.Encode(repaired)); err != nil {
		return nil, fmt.Errorf("write boot sector: %w", err)
	}

	// Verification pass: re-read what actually landed on the medium.
	raw, err := s.store.ReadSectors(0, 1)
	if err != nil {
		return nil, fmt.Errorf("re-read boot sector: %w", err)
	}
	if len(raw) > bootsector.SectorSize {
		raw = raw[:bootsector.SectorSize]
	}
	info, err := bootsector.Decode(raw)
	if err != nil {
		return nil, err
	}
	findings := bootsector.Validate(info, s.analysis.DiskSize)
	if !bootsector.IsValid(findings) {
		return nil, &Error{Kind: KindVerificationFailed, Findings: findings}
	}

	log.WithField("fat_type", info.Type).Info("boot sector repaired and verified")
	return &RepairResult{Info: info, Findings: findings, Raw: raw}, nil
}
