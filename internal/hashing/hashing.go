// Package hashing computes the canonical content hashes anchored on chain.
// All functions are pure; the digest of a rating session must be reproducible
// byte-for-byte from the same logical inputs regardless of retrieval order.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/noah-isme/gema-anchor/internal/models"
)

// Digest is a fixed-length 32-byte content hash.
type Digest [32]byte

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// HashIdentifier hashes a single identifying string, such as a task or
// student reference.
func HashIdentifier(value string) Digest {
	return sha256.Sum256([]byte(value))
}

type canonicalSkill struct {
	SkillID uint `json:"skill_id"`
	Stars   int  `json:"stars"`
}

type canonicalSession struct {
	SessionID uint             `json:"session_id"`
	TaskID    uint             `json:"task_id"`
	RaterID   uint             `json:"rater_id"`
	StudentID uint             `json:"student_id"`
	AvgStars  string           `json:"avg_stars"`
	XP        int              `json:"xp"`
	Skills    []canonicalSkill `json:"skills"`
}

// HashSession digests the canonical form of a rating session and its skill
// lines. Skills are sorted ascending by skill id before serialization so the
// digest does not depend on storage or iteration order, and the star average
// is rendered with one decimal so number formatting stays stable.
func HashSession(session models.RatingSession, lines []models.SkillRatingLine) Digest {
	skills := make([]canonicalSkill, 0, len(lines))
	for _, line := range lines {
		skills = append(skills, canonicalSkill{SkillID: line.SkillID, Stars: line.Stars})
	}

	sort.Slice(skills, func(i, j int) bool {
		return skills[i].SkillID < skills[j].SkillID
	})

	payload := canonicalSession{
		SessionID: session.ID,
		TaskID:    session.TaskID,
		RaterID:   session.RaterID,
		StudentID: session.StudentID,
		AvgStars:  strconv.FormatFloat(session.AvgStars, 'f', 1, 64),
		XP:        session.XP,
		Skills:    skills,
	}

	// Struct fields marshal in declaration order, so the serialized form is
	// canonical for a fixed payload shape.
	encoded, err := json.Marshal(payload)
	if err != nil {
		// Marshalling a struct of plain values cannot fail.
		panic(err)
	}

	return sha256.Sum256(encoded)
}
