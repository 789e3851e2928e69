package hashing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-anchor/internal/models"
)

func TestHashIdentifierDeterministic(t *testing.T) {
	first := HashIdentifier("task-42")
	second := HashIdentifier("task-42")
	require.Equal(t, first, second)
	require.Len(t, first.Bytes(), 32)
	require.Len(t, first.Hex(), 64)

	other := HashIdentifier("task-43")
	require.NotEqual(t, first, other)
}

func TestHashSessionIndependentOfLineOrder(t *testing.T) {
	session := models.RatingSession{
		ID:        1,
		TaskID:    7,
		RaterID:   3,
		StudentID: 9,
		AvgStars:  4.5,
		XP:        120,
	}
	lines := []models.SkillRatingLine{
		{ID: 10, SessionID: 1, SkillID: 2, Stars: 5},
		{ID: 11, SessionID: 1, SkillID: 1, Stars: 4},
		{ID: 12, SessionID: 1, SkillID: 5, Stars: 3},
		{ID: 13, SessionID: 1, SkillID: 3, Stars: 2},
	}

	expected := HashSession(session, lines)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]models.SkillRatingLine, len(lines))
		copy(shuffled, lines)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		require.Equal(t, expected, HashSession(session, shuffled))
	}
}

func TestHashSessionReorderedInputMatches(t *testing.T) {
	session := models.RatingSession{ID: 1, TaskID: 1, RaterID: 1, StudentID: 1, AvgStars: 4.5, XP: 120}

	ascending := HashSession(session, []models.SkillRatingLine{
		{SkillID: 1, Stars: 4},
		{SkillID: 2, Stars: 5},
	})
	descending := HashSession(session, []models.SkillRatingLine{
		{SkillID: 2, Stars: 5},
		{SkillID: 1, Stars: 4},
	})

	require.Equal(t, ascending, descending)
}

func TestHashSessionSensitiveToContent(t *testing.T) {
	session := models.RatingSession{ID: 1, TaskID: 1, RaterID: 1, StudentID: 1, AvgStars: 4.0, XP: 100}
	lines := []models.SkillRatingLine{{SkillID: 1, Stars: 4}}

	base := HashSession(session, lines)

	bumpedXP := session
	bumpedXP.XP = 101
	require.NotEqual(t, base, HashSession(bumpedXP, lines))

	bumpedStars := []models.SkillRatingLine{{SkillID: 1, Stars: 5}}
	require.NotEqual(t, base, HashSession(session, bumpedStars))

	require.NotEqual(t, base, HashSession(session, nil))
}

func TestHashSessionAverageFormattingStable(t *testing.T) {
	whole := models.RatingSession{ID: 2, TaskID: 2, RaterID: 2, StudentID: 2, AvgStars: 4, XP: 80}
	fractional := whole
	fractional.AvgStars = 4.0

	lines := []models.SkillRatingLine{{SkillID: 1, Stars: 4}}
	require.Equal(t, HashSession(whole, lines), HashSession(fractional, lines))
}
