package annotation

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scribblemap/arcapture/internal/drawing"
	"github.com/scribblemap/arcapture/internal/geo"
)

// annotationRow is the session table schema.
type annotationRow struct {
	Seq       uint   `gorm:"primarykey;autoIncrement"`
	ID        string `gorm:"uniqueIndex;size:36"`
	Latitude  float64
	Longitude float64
	Image     string
	CreatedAt time.Time
}

func (annotationRow) TableName() string { return "annotations" }

func (r annotationRow) toAnnotation() Annotation {
	return Annotation{
		ID:         r.ID,
		Coordinate: geo.Coordinate{Latitude: r.Latitude, Longitude: r.Longitude},
		Image:      drawing.RasterImage(r.Image),
		CreatedAt:  r.CreatedAt,
	}
}

// SQLiteStore keeps the session's annotations in a private in-memory SQLite
// database. Nothing is written to disk.
type SQLiteStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens a fresh in-memory database and migrates the schema.
func NewSQLiteStore(log zerolog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory SQLite DB: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	if err := db.AutoMigrate(&annotationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate annotations table: %w", err)
	}

	log.Info().Msg("Using in-memory SQLite annotation store")
	return &SQLiteStore{db: db, logger: log}, nil
}

// Append inserts a as the newest row.
func (s *SQLiteStore) Append(a Annotation) error {
	row := annotationRow{
		ID:        a.ID,
		Latitude:  a.Coordinate.Latitude,
		Longitude: a.Coordinate.Longitude,
		Image:     string(a.Image),
		CreatedAt: a.CreatedAt,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("inserting annotation: %w", err)
	}
	return nil
}

// Get looks up an annotation by id.
func (s *SQLiteStore) Get(id string) (Annotation, bool) {
	var row annotationRow
	err := s.db.Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("annotation lookup failed")
		return Annotation{}, false
	}
	if row.ID == "" {
		return Annotation{}, false
	}
	return row.toAnnotation(), true
}

// Snapshot returns every annotation ordered by insertion.
func (s *SQLiteStore) Snapshot() []Annotation {
	var rows []annotationRow
	if err := s.db.Order("seq ASC").Find(&rows).Error; err != nil {
		s.logger.Error().Err(err).Msg("annotation snapshot failed")
		return []Annotation{}
	}
	out := make([]Annotation, len(rows))
	for i, r := range rows {
		out[i] = r.toAnnotation()
	}
	return out
}

// Len returns the row count.
func (s *SQLiteStore) Len() int {
	var n int64
	if err := s.db.Model(&annotationRow{}).Count(&n).Error; err != nil {
		s.logger.Error().Err(err).Msg("annotation count failed")
		return 0
	}
	return int(n)
}

// Clear deletes every row.
func (s *SQLiteStore) Clear() error {
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&annotationRow{}).Error; err != nil {
		return fmt.Errorf("clearing annotations: %w", err)
	}
	return nil
}

// Close releases the database; the in-memory data is discarded.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
