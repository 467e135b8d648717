package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
)

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "github:1")

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	in := &model.Session{
		ID:        "sid-1",
		UserID:    "github:1",
		Identity:  model.Identity{Subject: "github:1", Email: "a@example.com", FirstName: "Ada"},
		ExpiresAt: expires,
	}
	if err := db.CreateSession(ctx, in); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := db.GetSession(ctx, "sid-1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.UserID != "github:1" || got.Identity.FirstName != "Ada" {
		t.Errorf("GetSession() = %+v", got)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
}

func TestDeleteSession_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "github:1")

	if err := db.CreateSession(ctx, &model.Session{ID: "s", UserID: "github:1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := db.DeleteSession(ctx, "s"); err != nil {
			t.Fatalf("DeleteSession() #%d error = %v", i+1, err)
		}
	}
	if _, err := db.GetSession(ctx, "s"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetSession() error = %v, want ErrNotFound", err)
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "github:1")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := []*model.Session{
		{ID: "old", UserID: "github:1", ExpiresAt: now.Add(-time.Hour)},
		{ID: "edge", UserID: "github:1", ExpiresAt: now},
		{ID: "live", UserID: "github:1", ExpiresAt: now.Add(time.Hour)},
	}
	for _, s := range sessions {
		if err := db.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", s.ID, err)
		}
	}

	n, err := db.DeleteExpiredSessions(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error = %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d sessions, want 2", n)
	}
	if _, err := db.GetSession(ctx, "live"); err != nil {
		t.Errorf("live session was pruned: %v", err)
	}
}

func TestDeleteUserSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "github:1")
	createTestUser(t, db, "github:2")

	exp := time.Now().Add(time.Hour)
	for _, s := range []*model.Session{
		{ID: "a", UserID: "github:1", ExpiresAt: exp},
		{ID: "b", UserID: "github:1", ExpiresAt: exp},
		{ID: "c", UserID: "github:2", ExpiresAt: exp},
	} {
		if err := db.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", s.ID, err)
		}
	}

	if err := db.DeleteUserSessions(ctx, "github:1"); err != nil {
		t.Fatalf("DeleteUserSessions() error = %v", err)
	}
	if _, err := db.GetSession(ctx, "c"); err != nil {
		t.Errorf("other user's session removed: %v", err)
	}
	if _, err := db.GetSession(ctx, "a"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetSession(a) error = %v, want ErrNotFound", err)
	}
}
