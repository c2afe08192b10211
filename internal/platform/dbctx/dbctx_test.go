package dbctx

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&note{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestAfterCommitRunsImmediatelyWithoutHooks(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	if !ran {
		t.Fatalf("callback should run immediately without a hook registry")
	}
}

func TestCommitHooksRunInOrderOnCommit(t *testing.T) {
	ctx, flush := WithCommitHooks(context.Background())
	var order []int
	AfterCommit(ctx, func() { order = append(order, 1) })
	AfterCommit(ctx, func() { order = append(order, 2) })
	if len(order) != 0 {
		t.Fatalf("callbacks ran before flush: %v", order)
	}
	flush(true)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order: got=%v", order)
	}
	flush(true)
	if len(order) != 2 {
		t.Fatalf("callbacks ran twice: %v", order)
	}
}

func TestCommitHooksDiscardedOnRollback(t *testing.T) {
	ctx, flush := WithCommitHooks(context.Background())
	ran := false
	AfterCommit(ctx, func() { ran = true })
	flush(false)
	if ran {
		t.Fatalf("callback ran after rollback")
	}
}

func TestTransactionCommitsAndFlushes(t *testing.T) {
	db := openDB(t)
	ran := false
	err := Transaction(context.Background(), db, func(dbc Context) error {
		AfterCommit(dbc.Ctx, func() { ran = true })
		return dbc.DB(db).Create(&note{Body: "kept"}).Error
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if !ran {
		t.Fatalf("after-commit callback did not run")
	}
	var n int64
	db.Model(&note{}).Count(&n)
	if n != 1 {
		t.Fatalf("rows: want=1 got=%d", n)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")
	ran := false
	err := Transaction(context.Background(), db, func(dbc Context) error {
		AfterCommit(dbc.Ctx, func() { ran = true })
		if err := dbc.DB(db).Create(&note{Body: "discarded"}).Error; err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err: want=%v got=%v", boom, err)
	}
	if ran {
		t.Fatalf("after-commit callback ran on rollback")
	}
	var n int64
	db.Model(&note{}).Count(&n)
	if n != 0 {
		t.Fatalf("rows: want=0 got=%d", n)
	}
}
