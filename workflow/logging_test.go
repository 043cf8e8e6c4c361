package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/bankrec_backend/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// unreachableDB fails every statement with a connection error, without a server.
func unreachableDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "bankrec:bankrec@tcp(127.0.0.1:3306)/bankrec?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	tx := db.Session(&gorm.Session{})
	tx.AddError(errors.New("connection reset by peer"))
	return tx
}

func errorEntries(hook *logtest.Hook, funcName string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["funcName"] == funcName {
			out = append(out, e)
		}
	}
	return out
}

func TestMarkPublishSent_LogsLostStatusWrite(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	d := &OutboxDispatcher{DB: unreachableDB(t), Logger: logger}

	d.markPublishSent(context.Background(), 42, "msg-1", time.Now().UTC())

	entries := errorEntries(hook, "markPublishSent")
	if len(entries) != 1 {
		t.Fatalf("expected one logged status failure, got %d", len(entries))
	}
	data, _ := entries[0].Data["data"].(map[string]interface{})
	if data["record_id"] != 42 {
		t.Fatalf("record id not logged: %v", entries[0].Data)
	}
}

func TestMarkPublishFailed_LogsLostStatusWrite(t *testing.T) {
	for _, attempts := range []int{1, 3} {
		logger, hook := logtest.NewNullLogger()
		d := &OutboxDispatcher{DB: unreachableDB(t), Logger: logger, MaxAttempts: 3, InitialBackoff: time.Second}
		rec := models.PubSubMessageRecord{ID: 7, BusinessId: "biz-1", PublishAttempts: attempts}

		d.markPublishFailed(context.Background(), rec, errors.New("pubsub unavailable"))

		if got := len(errorEntries(hook, "markPublishFailed")); got != 1 {
			t.Fatalf("attempt %d: expected one logged status failure, got %d", attempts, got)
		}
	}
}

func TestReleasePostingLock_LogsFailure(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	name := postingLockName("biz-1", 3)

	releasePostingLock(unreachableDB(t), logger, name)

	entries := errorEntries(hook, "releasePostingLock")
	if len(entries) != 1 {
		t.Fatalf("expected one logged release failure, got %d", len(entries))
	}
	if entries[0].Data["context"] != name {
		t.Fatalf("lock name not logged: %v", entries[0].Data)
	}
}
