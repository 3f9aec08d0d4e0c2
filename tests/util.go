package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/student"
	"github.com/trezcool/schoolfees/services/logger"
)

// NewConfig returns a TEST config that does not depend on the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		AppName:          "Sunrise Academy",
		Debug:            true,
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Sunrise Academy", Address: "noreply@test.cd"},
		WorkDir:          core.Getwd(),
		Server: core.ServerConfig{
			Host:               "localhost",
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Scheduler: core.SchedulerConfig{
			DueDateSpec: "0 * * * *",
			LockTTL:     time.Minute,
		},
		Notifications: core.NotificationsConfig{
			DefaultChannel:  "EMAIL",
			MaxAttempts:     3,
			DispatchTimeout: time.Second,
		},
		LateFee: core.LateFeeConfig{
			Formula: "days_overdue * 50",
		},
	}
}

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
}

// FreezeTime pins core.NowFunc to `now` for the duration of the test.
func FreezeTime(t *testing.T, now time.Time) {
	prev := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = prev })
}

// Date returns the UTC midnight of y-m-d.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func CreateStudent(t *testing.T, repo student.Repository, name, email, phone string) student.Student {
	stu, err := repo.SaveStudent(context.Background(), student.Student{
		ID:    uuid.New().String(),
		Name:  name,
		Email: email,
		Phone: phone,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stu
}

// CreateLedger stores a ledger of `tuition` fees for the student with the given installments.
func CreateLedger(t *testing.T, repo fee.Repository, studentID string, tuition int64, insts ...fee.Installment) fee.Ledger {
	now := core.NowFunc().UTC()
	ldg := fee.Ledger{
		StudentID:    studentID,
		AcademicYear: "2024-2025",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := ldg.SetComponent(fee.ComponentTuition, tuition); err != nil {
		t.Fatalf("CreateLedger() failed: %v", err)
	}
	for _, inst := range insts {
		if err := ldg.AddInstallment(inst); err != nil {
			t.Fatalf("CreateLedger() failed: %v", err)
		}
	}
	ldg, err := repo.CreateLedger(context.Background(), ldg)
	if err != nil {
		t.Fatalf("CreateLedger() failed: %v", err)
	}
	return ldg
}
