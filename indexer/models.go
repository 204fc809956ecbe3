package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StakeClosure is one settled vault position. Amounts are stored as
// decimal strings so big.Int values survive the round trip unchanged.
type StakeClosure struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence          uint64    `gorm:"uniqueIndex"`
	Owner             string    `gorm:"size:90;index"`
	Scope             string    `gorm:"size:16;index"`
	ElapsedDays       uint64
	PrincipalReturned string `gorm:"size:80"`
	YieldReturned     string `gorm:"size:80"`
	Payout            string `gorm:"size:80"`
	Penalty           string `gorm:"size:80"`
	SharesBurned      string `gorm:"size:80"`
	Burned            string `gorm:"size:80"`
	PoolCredited      string `gorm:"size:80"`
	TreasuryPaid      string `gorm:"size:80"`
	ClosedAt          int64  `gorm:"index"`
	Digest            string `gorm:"size:64"`
	CreatedAt         time.Time
}

// PoolTopUp is one daily reward-pool credit.
type PoolTopUp struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence    uint64    `gorm:"uniqueIndex"`
	Authority   string    `gorm:"size:90"`
	Supply      string    `gorm:"size:80"`
	Credited    string    `gorm:"size:80"`
	PoolBalance string    `gorm:"size:80"`
	At          int64     `gorm:"index"`
	Digest      string    `gorm:"size:64"`
	CreatedAt   time.Time
}

// CustodySweep is one emergency drain of the module account.
type CustodySweep struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence    uint64    `gorm:"uniqueIndex"`
	Authority   string    `gorm:"size:90"`
	Recipient   string    `gorm:"size:90;index"`
	Amount      string    `gorm:"size:80"`
	IncidentRef string    `gorm:"size:128;index"`
	At          int64     `gorm:"index"`
	Digest      string    `gorm:"size:64"`
	CreatedAt   time.Time
}

// AutoMigrate creates or updates the history tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&StakeClosure{},
		&PoolTopUp{},
		&CustodySweep{},
	)
}
