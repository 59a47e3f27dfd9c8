package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Division is a reference row from the divisions table. Reference data is
// fetched fresh each cycle and never cached.
type Division struct {
	bun.BaseModel `bun:"table:divisions"`

	ID   uuid.UUID `bun:"id,pk,type:uuid"`
	Name string    `bun:"name"`
}

// Team is a reference row from the teams table, scoped to a division.
type Team struct {
	bun.BaseModel `bun:"table:teams"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	Name       string    `bun:"name"`
	DivisionID uuid.UUID `bun:"division_id,type:uuid"`
}

// Match is a finalized league result. The same struct serves as a candidate
// (ID zero, not yet persisted) and as the stored row; the matches table is a
// full-replace snapshot, not an append log.
type Match struct {
	bun.BaseModel `bun:"table:matches"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,nullzero,default:gen_random_uuid()"`
	DivisionID     uuid.UUID `bun:"division_id,type:uuid"`
	Team1ID        uuid.UUID `bun:"team1_id,type:uuid"`
	Team2ID        uuid.UUID `bun:"team2_id,type:uuid"`
	Date           time.Time `bun:"date,type:date"`
	Team1Wins      int       `bun:"team1_wins"`
	Team2Wins      int       `bun:"team2_wins"`
	Team1PointsFor int       `bun:"team1_points_for"`
	Team2PointsFor int       `bun:"team2_points_for"`
}

// Attachment is the raw report extracted from a mail message, together with
// the message metadata the outcome notification reports.
type Attachment struct {
	Filename string
	Subject  string
	Date     time.Time
	Data     []byte
}
