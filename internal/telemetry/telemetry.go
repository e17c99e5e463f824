// Package telemetry records capture sessions and state transitions as
// InfluxDB points. When the server is unreachable points go to a gzip
// line-protocol backup file instead.
package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/scribblemap/arcapture/internal/capture"
	"github.com/scribblemap/arcapture/internal/config"
)

const (
	// MeasurementSession is written once per ended capture session.
	MeasurementSession = "capture_session"
	// MeasurementState is written on every controller state change.
	MeasurementState = "capture_state"

	retentionSeconds = 60 * 60 * 24 * 90
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx telemetry disabled")

// Source is the controller event surface telemetry subscribes to.
type Source interface {
	OnSessionEnded(fn func(capture.SessionReport)) (unsubscribe func())
	OnStateChanged(fn func(capture.StateChange)) (unsubscribe func())
}

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg    config.InfluxConfig
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backup     *gzip.Writer
	backupFile *os.File
	valid      bool
	closed     bool
}

// NewManager creates a telemetry manager. Call Connect before writing.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: log, now: time.Now}
}

// Connect pings the server and prepares the bucket, falling back to the
// backup file when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.logger.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing telemetry to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.writer.Errors())

	m.valid = true
	m.logger.Info().Str("url", m.cfg.URL).Str("bucket", m.cfg.Bucket).Msg("InfluxDB telemetry initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.backup != nil {
		return nil
	}
	if dir := filepath.Dir(m.cfg.BackupPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating backup directory: %w", err)
		}
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backup = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			m.logger.Error().Err(err).Str("org", m.cfg.Org).Msg("Error creating organization")
			return err
		}
	}

	if _, err := m.client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = m.client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.logger.Error().Err(err).Str("bucket", m.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}
	return nil
}

// Online reports whether points go to the server rather than the backup.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.valid
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return errors.New("telemetry manager closed")
	case m.valid:
		m.writer.WritePoint(point)
		return nil
	case m.backup != nil:
		line := strings.TrimRight(influxdb2_write.PointToLineProtocol(point, time.Nanosecond), "\n")
		if _, err := m.backup.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("error writing to telemetry backup file: %w", err)
		}
		return nil
	default:
		return errors.New("telemetry not connected")
	}
}

// SessionPoint describes an ended capture session.
func SessionPoint(r capture.SessionReport) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementSession).
		AddTag("had_coordinate", strconv.FormatBool(r.HadCoordinate)).
		AddTag("outcome", string(r.Outcome)).
		AddField("session_id", r.SessionID).
		AddField("strokes", r.Strokes).
		AddField("duration_ms", r.Duration().Milliseconds()).
		SetTime(r.EndedAt)
	if r.AnnotationID != "" {
		p.AddField("annotation_id", r.AnnotationID)
	}
	return p
}

// StatePoint describes one controller state change.
func StatePoint(ch capture.StateChange, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPointWithMeasurement(MeasurementState).
		AddTag("from", ch.From.String()).
		AddTag("to", ch.To.String()).
		AddField("transient", ch.To.Transient()).
		SetTime(at)
}

// Attach subscribes to src and writes a point per event.
func (m *Manager) Attach(src Source) (detach func()) {
	offSession := src.OnSessionEnded(func(r capture.SessionReport) {
		if err := m.WritePoint(SessionPoint(r)); err != nil {
			m.logger.Error().Err(err).Str("session", r.SessionID).Msg("Error writing session telemetry")
		}
	})
	offState := src.OnStateChanged(func(ch capture.StateChange) {
		if err := m.WritePoint(StatePoint(ch, m.now())); err != nil {
			m.logger.Error().Err(err).Msg("Error writing state telemetry")
		}
	})
	return func() {
		offSession()
		offState()
	}
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}

	var errs []error
	if m.backup != nil {
		errs = append(errs, m.backup.Close())
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
	}
	return errors.Join(errs...)
}
