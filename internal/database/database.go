package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ttygate/ttygate/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&Setting{}, &AuditEvent{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", err
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

func DeleteSetting(key string) error {
	return DB.Where("key = ?", key).Delete(&Setting{}).Error
}

// RecordAudit inserts an audit event. Failures are logged and swallowed:
// auditing must never fail the serving path.
func RecordAudit(kind, detail, remoteAddr string) {
	if DB == nil {
		return
	}
	ev := AuditEvent{Kind: kind, Detail: detail, RemoteAddr: remoteAddr}
	if err := DB.Create(&ev).Error; err != nil {
		log.Printf("audit: record %s failed: %v", kind, err)
	}
}

// PruneAudit deletes audit events older than the retention window and
// returns the number of rows removed.
func PruneAudit(retention time.Duration) (int64, error) {
	if DB == nil || retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	res := DB.Where("created_at < ?", cutoff).Delete(&AuditEvent{})
	return res.RowsAffected, res.Error
}

// ListAudit returns the most recent audit events, newest first.
func ListAudit(limit int) ([]AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var events []AuditEvent
	if err := DB.Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
