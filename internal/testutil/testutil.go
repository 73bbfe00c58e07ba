// Package testutil builds the in-memory ledger used by service tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/migration"
	notificationdomain "github.com/smallbiznis/duesledger/internal/notification/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Epoch is the fixed "now" of fake clocks in tests.
var Epoch = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

// OpenDB returns a fresh in-memory sqlite database with the full schema.
// A single connection keeps the shared-cache database from locking itself.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func Clock() *clock.FakeClock {
	return clock.NewFakeClock(Epoch)
}

func Policy() *config.PolicyHolder {
	return config.NewStaticPolicyHolder(config.DefaultReconciliationPolicy())
}

func SeedProfile(t testing.TB, db *gorm.DB, id, name, role string) {
	t.Helper()
	if err := db.Exec(`INSERT INTO profiles (id, full_name, role) VALUES (?, ?, ?)`, id, name, role).Error; err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
}

// SeedGroup creates a group and adds members, creating member profiles as needed.
func SeedGroup(t testing.TB, db *gorm.DB, groupID string, members ...string) {
	t.Helper()
	if err := db.Exec(`INSERT INTO user_groups (id, name) VALUES (?, ?)`, groupID, "Grupo "+groupID).Error; err != nil {
		t.Fatalf("seed group %s: %v", groupID, err)
	}
	for _, m := range members {
		AddMember(t, db, groupID, m)
	}
}

func AddMember(t testing.TB, db *gorm.DB, groupID, userID string) {
	t.Helper()
	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM profiles WHERE id = ?`, userID).Scan(&count).Error; err != nil {
		t.Fatalf("count profile: %v", err)
	}
	if count == 0 {
		SeedProfile(t, db, userID, "Membro "+userID, "member")
	}
	if err := db.Exec(`INSERT INTO user_group_members (group_id, user_id) VALUES (?, ?)`, groupID, userID).Error; err != nil {
		t.Fatalf("add member %s: %v", userID, err)
	}
}

func RemoveMember(t testing.TB, db *gorm.DB, groupID, userID string) {
	t.Helper()
	if err := db.Exec(`DELETE FROM user_group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).Error; err != nil {
		t.Fatalf("remove member %s: %v", userID, err)
	}
}

// Count runs SELECT COUNT(*) over table with an optional where clause.
func Count(t testing.TB, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// Publisher records published events instead of storing them.
type Publisher struct {
	mu     sync.Mutex
	events []notificationdomain.Event
}

func (p *Publisher) Publish(_ context.Context, events ...notificationdomain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *Publisher) Events() []notificationdomain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notificationdomain.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Recipients lists the user ids of recorded events of the given type.
func (p *Publisher) Recipients(eventType string) []string {
	var out []string
	for _, e := range p.Events() {
		if e.Type == eventType {
			out = append(out, e.UserID)
		}
	}
	return out
}
