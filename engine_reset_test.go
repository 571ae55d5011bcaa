package marketauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startReset(t *testing.T, engine *Engine, mailer *captureNotifier, email string) string {
	t.Helper()

	if err := engine.ForgotPassword(context.Background(), email); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}
	return mailer.lastCode(t)
}

func TestPasswordResetFlow(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")

	ctx := context.Background()
	code := startReset(t, engine, mailer, "alice@example.com")

	if err := engine.VerifyReset(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyReset failed: %v", err)
	}
	if err := engine.ResetPassword(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}
}

func TestForgotPasswordNeverRevealsExistence(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")
	delivered := mailer.count()

	ctx := context.Background()
	if err := engine.ForgotPassword(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword for unknown email must succeed, got %v", err)
	}
	if mailer.count() != delivered {
		t.Fatal("nothing may be delivered for an unknown email")
	}

	// Unknown emails are rate limited the same as known ones.
	err := engine.ForgotPassword(ctx, "nobody@example.com")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited inside cooldown, got %v", err)
	}
}

func TestResetPasswordRequiresMarker(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")

	err := engine.ResetPassword(context.Background(), "alice@example.com", "brand-new-password")
	if !errors.Is(err, ErrResetNotAuthorized) {
		t.Fatalf("expected ErrResetNotAuthorized without marker, got %v", err)
	}
}

func TestResetMarkerSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")

	ctx := context.Background()
	code := startReset(t, engine, mailer, "alice@example.com")
	if err := engine.VerifyReset(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyReset failed: %v", err)
	}

	if err := engine.ResetPassword(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("first ResetPassword failed: %v", err)
	}
	err := engine.ResetPassword(ctx, "alice@example.com", "yet-another-password")
	if !errors.Is(err, ErrResetNotAuthorized) {
		t.Fatalf("expected ErrResetNotAuthorized on marker reuse, got %v", err)
	}
}

func TestResetMarkerExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")

	ctx := context.Background()
	code := startReset(t, engine, mailer, "alice@example.com")
	if err := engine.VerifyReset(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyReset failed: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	err := engine.ResetPassword(ctx, "alice@example.com", "brand-new-password")
	if !errors.Is(err, ErrResetNotAuthorized) {
		t.Fatalf("expected ErrResetNotAuthorized after marker expiry, got %v", err)
	}
}

func TestResetRevokesAllRefreshTokens(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")

	ctx := context.Background()
	pair, err := engine.Login(ctx, "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	code := startReset(t, engine, mailer, "alice@example.com")
	if err := engine.VerifyReset(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("VerifyReset failed: %v", err)
	}
	if err := engine.ResetPassword(ctx, "alice@example.com", "brand-new-password"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("pre-reset refresh token must be dead, got %v", err)
	}
}

func TestResetFlowIndependentOfVerificationFlow(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	ctx := context.Background()
	if err := engine.Register(ctx, RegisterRequest{
		Email:    "bob@example.com",
		Password: "correct-horse-battery",
		Name:     "Bob Example",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	verificationCode := mailer.lastCode(t)

	registerAndVerify(t, engine, mailer, "alice@example.com")
	resetCode := startReset(t, engine, mailer, "alice@example.com")

	// Both codes stay live; the namespaces do not collide.
	if err := engine.VerifyReset(ctx, "alice@example.com", resetCode); err != nil {
		t.Fatalf("VerifyReset failed: %v", err)
	}
	if _, err := engine.VerifyRegistration(ctx, "bob@example.com", verificationCode); err != nil {
		t.Fatalf("VerifyRegistration failed: %v", err)
	}
}

func TestVerifyResetWrongCode(t *testing.T) {
	_, rdb := newTestRedis(t)
	users := newMockUserStore()
	mailer := &captureNotifier{}
	engine := newTestEngine(t, rdb, users, mailer)

	registerAndVerify(t, engine, mailer, "alice@example.com")
	code := startReset(t, engine, mailer, "alice@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	ctx := context.Background()
	err := engine.VerifyReset(ctx, "alice@example.com", wrong)
	var invalidErr *OTPInvalidError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected OTPInvalidError, got %v", err)
	}
	if invalidErr.Remaining != 4 {
		t.Fatalf("expected 4 attempts remaining, got %d", invalidErr.Remaining)
	}

	if err := engine.VerifyReset(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("correct code should still verify: %v", err)
	}
}
