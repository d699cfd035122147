package db

import (
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq" // <-- Add this for PostgreSQL
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"turnover.magictradebot.com/models"
)

// Mirror copies every normalized batch into a SQL table keyed like the CSV table.
type Mirror struct {
	DB  *gorm.DB
	log logrus.FieldLogger
}

func Open(provider, conn string, log logrus.FieldLogger) (*Mirror, error) {
	var dialector gorm.Dialector

	switch provider {
	case "sqlite":
		if _, err := os.Stat(conn); os.IsNotExist(err) {
			log.Warnf("⚠️  SQLite DB file '%s' does not exist. Will be created on first write.", conn)
		}
		dialector = sqlite.Open(conn)
	case "postgresql":
		dialector = postgres.Open(conn)
	default:
		return nil, fmt.Errorf("unknown DB provider: %s", provider)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", provider, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("extract sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("DB ping failed: %w", err)
	}
	log.Infof("✅ %s connected", provider)

	return &Mirror{DB: db, log: log}, nil
}

// AutoMigrate creates or extends the record table. It never drops data.
func (m *Mirror) AutoMigrate() error {
	return m.DB.AutoMigrate(&models.Record{})
}

func (m *Mirror) Close() error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRecords upserts data; a row already stored for (symbol, hour_bucket) is replaced,
// the same latest-wins rule the CSV table follows.
func (m *Mirror) SaveRecords(data []models.Record, instance string) error {
	if len(data) == 0 {
		m.log.WithField("instance", instance).Info("📭 No records to insert")
		return nil
	}

	rows := make([]models.Record, len(data))
	copy(rows, data)
	for i := range rows {
		rows[i].ID = 0
		rows[i].Instance = instance
	}

	result := m.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "hour_bucket"},
			{Name: "symbol"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"asset_slug", "market_cap", "volume_24h", "turnover_rate", "instance",
		}),
	}).CreateInBatches(rows, 100)

	if result.Error != nil {
		return fmt.Errorf("upsert failed: %w", result.Error)
	}

	m.log.WithFields(logrus.Fields{
		"instance":  instance,
		"attempted": len(rows),
		"affected":  result.RowsAffected,
	}).Info("✅ Saved all records to DB")

	return nil
}
