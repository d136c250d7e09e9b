package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/reminder"
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain/subscription"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/lock"
	"github.com/dmehra2102/prod-golang-projects/medvault/pkg/notify"
	"go.uber.org/zap"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
	fail bool
}

func (o *outbox) notifier() notify.Notifier {
	return notify.NotifierFunc(func(_ context.Context, msg notify.Message) error {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.fail {
			return errors.New("smtp relay down")
		}
		o.sent = append(o.sent, msg)
		return nil
	})
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func newScanner(env *testEnv, n notify.Notifier, locker lock.Locker, batch int) *ReminderScanner {
	return NewReminderScanner(env.rems, n, locker, env.metrics, zap.NewNop(), ScannerOptions{
		BatchSize:  batch,
		ClaimLease: time.Minute,
		LockTTL:    time.Minute,
		SubjectTag: "MedVault",
	})
}

func seedReminder(t *testing.T, env *testEnv, title string, at time.Time, doctor, patient *domain.User) *reminder.Reminder {
	t.Helper()
	r := &reminder.Reminder{Title: title, Date: at}
	if doctor != nil {
		r.DoctorID = &doctor.ID
		r.CreatedBy = doctor.ID
	}
	if patient != nil {
		r.PatientID = &patient.ID
		r.CreatedBy = patient.ID
	}
	if err := env.rems.Create(context.Background(), r); err != nil {
		t.Fatalf("seed reminder: %v", err)
	}
	return r
}

func TestScannerSendsDueRemindersOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pkg := env.seedPackage(t, nil)
	doc := env.seedUser(t, "doc", domain.RoleDoctor, pkg)
	now := time.Now().UTC()

	due := seedReminder(t, env, "Review labs", now.Add(-time.Hour), doc, nil)
	seedReminder(t, env, "Tomorrow", now.Add(24*time.Hour), doc, nil)

	box := &outbox{}
	scanner := newScanner(env, box.notifier(), lock.NewLocalLocker(), 10)

	res, err := scanner.Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Scanned != 1 || res.Sent != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	msg := box.sent[0]
	if msg.To != "doc@example.org" || msg.Subject != "[MedVault] Reminder: Review labs" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.HasPrefix(msg.Body, "Dear Doctor,") || !strings.Contains(msg.Body, due.Date.UTC().Format("2006-01-02 15:04")) {
		t.Fatalf("unexpected body %q", msg.Body)
	}

	got, err := env.rems.GetByID(ctx, due.ID)
	if err != nil || !got.Notified {
		t.Fatalf("expected reminder notified, err=%v", err)
	}

	res, err = scanner.Run(ctx, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Sent != 0 || box.count() != 1 {
		t.Fatalf("reminder must not be sent twice: %+v", res)
	}
}

func TestScannerSkipsWithoutEntitlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	noReminders := env.seedPackage(t, func(p *subscription.Package) { p.CanSetReminders = false })
	pat := env.seedUser(t, "pat", domain.RolePatient, noReminders)
	now := time.Now().UTC()

	rem := seedReminder(t, env, "Pills", now.Add(-time.Minute), nil, pat)

	box := &outbox{}
	res, err := newScanner(env, box.notifier(), lock.NewLocalLocker(), 10).Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Skipped != 1 || box.count() != 0 {
		t.Fatalf("expected skip, got %+v", res)
	}
	got, _ := env.rems.GetByID(ctx, rem.ID)
	if got.Notified {
		t.Fatalf("skipped reminder must stay unnotified")
	}
}

func TestScannerLeavesFailedSendForRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pkg := env.seedPackage(t, nil)
	pat := env.seedUser(t, "pat", domain.RolePatient, pkg)
	now := time.Now().UTC()

	rem := seedReminder(t, env, "Pills", now.Add(-time.Minute), nil, pat)

	box := &outbox{fail: true}
	scanner := newScanner(env, box.notifier(), lock.NewLocalLocker(), 10)
	res, err := scanner.Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected a failure, got %+v", res)
	}
	got, _ := env.rems.GetByID(ctx, rem.ID)
	if got.Notified || got.ClaimedUntil != nil {
		t.Fatalf("failed reminder must be unnotified and unclaimed: %+v", got)
	}

	box.fail = false
	res, err = scanner.Run(ctx, now)
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if res.Sent != 1 || !strings.HasPrefix(box.sent[0].Body, "Dear Patient,") {
		t.Fatalf("expected retry to send, got %+v", res)
	}
}

func TestScannerPagesPastSkippedReminders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pkg := env.seedPackage(t, nil)
	noReminders := env.seedPackage(t, func(p *subscription.Package) { p.CanSetReminders = false })
	blocked := env.seedUser(t, "blocked", domain.RolePatient, noReminders)
	pat := env.seedUser(t, "pat", domain.RolePatient, pkg)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		seedReminder(t, env, "blocked", now.Add(-time.Duration(10+i)*time.Minute), nil, blocked)
	}
	seedReminder(t, env, "deliverable", now.Add(-time.Minute), nil, pat)

	box := &outbox{}
	res, err := newScanner(env, box.notifier(), lock.NewLocalLocker(), 2).Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Scanned != 4 || res.Skipped != 3 || res.Sent != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestScannerSkipsWhenLockHeld(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pkg := env.seedPackage(t, nil)
	pat := env.seedUser(t, "pat", domain.RolePatient, pkg)
	now := time.Now().UTC()
	seedReminder(t, env, "Pills", now.Add(-time.Minute), nil, pat)

	locker := lock.NewLocalLocker()
	lease, ok, err := locker.TryLock(ctx, "medvault:reminder-scanner", time.Minute)
	if err != nil || !ok {
		t.Fatalf("pre-lock: ok=%v err=%v", ok, err)
	}
	defer lease.Release(ctx)

	box := &outbox{}
	res, err := newScanner(env, box.notifier(), locker, 10).Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Contended || res.Scanned != 0 || box.count() != 0 {
		t.Fatalf("expected a contended no-op run, got %+v", res)
	}
}

func TestScannerSkipsReminderWithoutEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pkg := env.seedPackage(t, nil)
	pat := env.seedUser(t, "pat", domain.RolePatient, pkg)
	empty := ""
	if _, err := env.users.Update(ctx, pat.ID, &domain.UpdateUserCommand{Email: &empty}, nil); err != nil {
		t.Fatalf("clear email: %v", err)
	}
	now := time.Now().UTC()
	seedReminder(t, env, "Pills", now.Add(-time.Minute), nil, pat)

	box := &outbox{}
	res, err := newScanner(env, box.notifier(), lock.NewLocalLocker(), 10).Run(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Skipped != 1 || box.count() != 0 {
		t.Fatalf("expected skip for empty email, got %+v", res)
	}
}
