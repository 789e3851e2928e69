package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-anchor/internal/models"
)

func setupAnchorTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RatingSession{}, &models.SkillRatingLine{}, &models.IdentityRecord{}, &models.AnchorAttempt{}))

	require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.AnchorAttempt{}).Error)
	require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.SkillRatingLine{}).Error)
	require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.RatingSession{}).Error)
	require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.IdentityRecord{}).Error)

	return db
}

func TestRatingRepositoryListUnanchoredOldestFirst(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewRatingRepository(db)

	now := time.Now()
	newest := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 2, AvgStars: 4.0, XP: 80, CreatedAt: now}
	oldest := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 3, AvgStars: 3.5, XP: 60, CreatedAt: now.Add(-2 * time.Hour)}
	anchored := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 4, AvgStars: 5.0, XP: 100, OnChain: true, CreatedAt: now.Add(-4 * time.Hour)}

	require.NoError(t, db.Create(&newest).Error)
	require.NoError(t, db.Create(&oldest).Error)
	require.NoError(t, db.Create(&anchored).Error)

	sessions, err := repo.ListUnanchoredSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, oldest.ID, sessions[0].ID, "oldest session should come first")
	require.Equal(t, newest.ID, sessions[1].ID)
}

func TestRatingRepositoryListSkillLines(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewRatingRepository(db)

	session := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 2, AvgStars: 4.0, XP: 80}
	other := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 3, AvgStars: 3.0, XP: 50}
	require.NoError(t, db.Create(&session).Error)
	require.NoError(t, db.Create(&other).Error)

	require.NoError(t, db.Create(&models.SkillRatingLine{SessionID: session.ID, SkillID: 1, SkillName: "HTML", Stars: 4}).Error)
	require.NoError(t, db.Create(&models.SkillRatingLine{SessionID: session.ID, SkillID: 2, SkillName: "CSS", Stars: 5}).Error)
	require.NoError(t, db.Create(&models.SkillRatingLine{SessionID: other.ID, SkillID: 1, SkillName: "HTML", Stars: 2}).Error)

	lines, err := repo.ListSkillLines(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, line := range lines {
		require.Equal(t, session.ID, line.SessionID)
	}
}

func TestRatingRepositoryRecordSessionHashes(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewRatingRepository(db)

	session := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 2, AvgStars: 4.0, XP: 80}
	require.NoError(t, db.Create(&session).Error)

	require.NoError(t, repo.RecordSessionHashes(context.Background(), session.ID, "aa", "bb", "cc"))

	var stored models.RatingSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	require.NotNil(t, stored.SessionHash)
	require.Equal(t, "aa", *stored.SessionHash)
	require.Equal(t, "bb", *stored.TaskIDHash)
	require.Equal(t, "cc", *stored.StudentIDHash)

	// Recomputation overwrites idempotently.
	require.NoError(t, repo.RecordSessionHashes(context.Background(), session.ID, "aa", "bb", "cc"))

	err := repo.RecordSessionHashes(context.Background(), session.ID+999, "aa", "bb", "cc")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRatingRepositoryRecordSkillAnchored(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewRatingRepository(db)

	session := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 2, AvgStars: 4.0, XP: 80}
	require.NoError(t, db.Create(&session).Error)
	line := models.SkillRatingLine{SessionID: session.ID, SkillID: 1, SkillName: "HTML", Stars: 4}
	require.NoError(t, db.Create(&line).Error)

	require.NoError(t, repo.RecordSkillAnchored(context.Background(), line.ID, "0xabc"))

	var stored models.SkillRatingLine
	require.NoError(t, db.First(&stored, line.ID).Error)
	require.True(t, stored.Anchored())
	require.Equal(t, "0xabc", *stored.TxHash)

	err := repo.RecordSkillAnchored(context.Background(), line.ID+999, "0xdef")
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestRatingRepositoryRecordSessionFullyAnchored(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewRatingRepository(db)

	session := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 2, AvgStars: 4.0, XP: 80}
	require.NoError(t, db.Create(&session).Error)

	require.NoError(t, repo.RecordSessionFullyAnchored(context.Background(), session.ID))

	var stored models.RatingSession
	require.NoError(t, db.First(&stored, session.ID).Error)
	require.True(t, stored.OnChain)

	err := repo.RecordSessionFullyAnchored(context.Background(), session.ID+999)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRatingSessionScoredFieldsFreezeAfterAnchoring(t *testing.T) {
	db := setupAnchorTestDB(t)

	session := models.RatingSession{TaskID: 1, RaterID: 1, StudentID: 2, AvgStars: 4.0, XP: 80}
	require.NoError(t, db.Create(&session).Error)
	line := models.SkillRatingLine{SessionID: session.ID, SkillID: 1, SkillName: "HTML", Stars: 4}
	require.NoError(t, db.Create(&line).Error)

	// Nothing anchored yet: scored fields may still be corrected.
	require.NoError(t, db.Model(&session).Updates(map[string]interface{}{"avg_stars": 3.5, "xp": 70}).Error)

	repo := NewRatingRepository(db)
	require.NoError(t, repo.RecordSkillAnchored(context.Background(), line.ID, "0xabc"))

	err := db.Model(&session).Updates(map[string]interface{}{"avg_stars": 4.9}).Error
	require.ErrorIs(t, err, models.ErrScoredFieldsFrozen)

	err = db.Model(&session).Updates(map[string]interface{}{"xp": 999}).Error
	require.ErrorIs(t, err, models.ErrScoredFieldsFrozen)

	// Hash columns stay writable; only the scored inputs are frozen.
	require.NoError(t, repo.RecordSessionHashes(context.Background(), session.ID, "aa", "bb", "cc"))
}

func TestRatingRepositoryCreateAttempt(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewRatingRepository(db)

	attempt := models.AnchorAttempt{SessionID: 1, LineID: 2, Status: models.AttemptStatusConfirmed, TxHash: "0xabc"}
	require.NoError(t, repo.CreateAttempt(context.Background(), &attempt))
	require.NotZero(t, attempt.ID)
}

func TestIdentityRepositoryResolveDID(t *testing.T) {
	db := setupAnchorTestDB(t)
	repo := NewIdentityRepository(db, zerolog.New(io.Discard))

	require.NoError(t, db.Create(&models.IdentityRecord{UserID: 7, DID: "did:example:rater"}).Error)

	require.Equal(t, "did:example:rater", repo.ResolveDID(context.Background(), 7))
	require.Equal(t, "", repo.ResolveDID(context.Background(), 8), "missing record resolves to empty did")
}
