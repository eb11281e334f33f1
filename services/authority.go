package services

import (
	"errors"
	"fmt"

	"github.com/yashwanths814/vital-sub001/db"
)

// ErrInvalidLevel is returned for levels outside 0..2. Callers are expected
// never to produce one, so it is a programming error rather than a state.
var ErrInvalidLevel = errors.New("invalid escalation level")

// Authority is the officer role that owns an issue at a given level
type Authority struct {
	Level       int    `json:"level"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var authorities = [...]Authority{
	db.LevelPDO: {
		Level:       db.LevelPDO,
		Role:        db.RolePDO,
		Name:        "Panchayat Development Officer",
		Description: "Gram panchayat officer who receives every newly reported issue",
	},
	db.LevelTDO: {
		Level:       db.LevelTDO,
		Role:        db.RoleTDO,
		Name:        "Taluk Development Officer",
		Description: "Taluk level officer who takes over issues the panchayat did not resolve in time",
	},
	db.LevelDDO: {
		Level:       db.LevelDDO,
		Role:        db.RoleDDO,
		Name:        "District Development Officer",
		Description: "District level officer and final escalation authority",
	},
}

// AuthorityForLevel maps an escalation level to its authority.
// Out-of-range levels are rejected, never clamped.
func AuthorityForLevel(level int) (Authority, error) {
	if level < db.LevelPDO || level > db.MaxEscalationLevel {
		return Authority{}, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	return authorities[level], nil
}

// NextAuthority returns the authority an issue at level would escalate to.
// Level 2 is terminal and has none.
func NextAuthority(level int) (Authority, bool) {
	if level < db.LevelPDO || level >= db.MaxEscalationLevel {
		return Authority{}, false
	}
	return authorities[level+1], true
}

// StatusForLevel derives the denormalized status label. It is the only place
// that decides what status an escalation writes.
func StatusForLevel(level int) (string, error) {
	switch level {
	case db.LevelPDO:
		return db.IssueStatusPending, nil
	case db.LevelTDO:
		return db.IssueStatusEscalatedToTDO, nil
	case db.LevelDDO:
		return db.IssueStatusEscalatedToDDO, nil
	}
	return "", fmt.Errorf("%w: %d", ErrInvalidLevel, level)
}
