/*
 * RDB - relational record state store.
 *
 * Copyright 2023 Marco Confalonieri.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"porkbun-ddns/internal/ddns"
)

// RecordStateRow is the persistence model of a record state.
// Table name: record_states
type RecordStateRow struct {
	Domain      string `gorm:"primaryKey;type:text;not null"`
	RecordKey   string `gorm:"primaryKey;type:text;not null"`
	CurrentIP   string `gorm:"type:text"`
	OK          bool   `gorm:"not null"`
	Error       string `gorm:"type:text"`
	LastUpdated time.Time
	LastChanged time.Time
}

func (RecordStateRow) TableName() string { return "record_states" }

// RDBStore keeps the record states in a relational database.
type RDBStore struct {
	db *gorm.DB
}

// OpenFromURL opens a GORM DB based on a simple db-url string.
// Supported:
//   - sqlite:<dsn>   e.g., sqlite:./state.db or sqlite::memory:
//   - sqlite3:<dsn>  alias of sqlite
func OpenFromURL(dbURL string) (*gorm.DB, error) {
	var dsn string
	switch {
	case strings.HasPrefix(dbURL, "sqlite:"):
		dsn = strings.TrimPrefix(dbURL, "sqlite:")
	case strings.HasPrefix(dbURL, "sqlite3:"):
		dsn = strings.TrimPrefix(dbURL, "sqlite3:")
	default:
		return nil, fmt.Errorf("unsupported db scheme: %s", dbURL)
	}
	if dsn == "" {
		dsn = "./porkbun-ddns.db"
	}
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// OpenRDB opens the database and applies the schema migrations.
func OpenRDB(dbURL string) (*RDBStore, error) {
	db, err := OpenFromURL(dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RecordStateRow{}); err != nil {
		return nil, fmt.Errorf("migrating state database: %w", err)
	}
	return &RDBStore{db: db}, nil
}

// Load implements ddns.StateStore. Rows with an unreadable key are skipped.
func (s *RDBStore) Load(ctx context.Context, domain string) (map[ddns.RecordKey]ddns.RecordState, error) {
	var rows []RecordStateRow
	if err := s.db.WithContext(ctx).Where("domain = ?", domain).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[ddns.RecordKey]ddns.RecordState, len(rows))
	for _, r := range rows {
		key, err := ddns.ParseRecordKey(r.RecordKey)
		if err != nil {
			log.WithError(err).WithField("domain", domain).Warn("Skipping stored record state")
			continue
		}
		out[key] = ddns.RecordState{
			CurrentIP:   r.CurrentIP,
			OK:          r.OK,
			Error:       r.Error,
			LastUpdated: r.LastUpdated,
			LastChanged: r.LastChanged,
		}
	}
	return out, nil
}

// Save implements ddns.StateStore. The stored states of the domain are
// replaced.
func (s *RDBStore) Save(ctx context.Context, domain string, records map[ddns.RecordKey]ddns.RecordState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain = ?", domain).Delete(&RecordStateRow{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]RecordStateRow, 0, len(records))
		for k, v := range records {
			rows = append(rows, RecordStateRow{
				Domain:      domain,
				RecordKey:   k.String(),
				CurrentIP:   v.CurrentIP,
				OK:          v.OK,
				Error:       v.Error,
				LastUpdated: v.LastUpdated,
				LastChanged: v.LastChanged,
			})
		}
		return tx.Create(&rows).Error
	})
}

// Close implements Store.
func (s *RDBStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Store = (*RDBStore)(nil)
