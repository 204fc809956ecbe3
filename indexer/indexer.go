// Package indexer persists vault closure, top-up and sweep receipts
// from the engine event stream into a relational store, so operators
// can query settlement history without replaying chain state.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tenure/core"
	"tenure/core/events"
)

// Source is the engine event feed the indexer consumes. *core.Node
// satisfies it.
type Source interface {
	EventsSubscribe(ctx context.Context, cursor string) (<-chan core.EventUpdate, func(), []core.EventUpdate, error)
}

// Config wires an Indexer to its database and event source.
type Config struct {
	DB     *gorm.DB
	Source Source
	Logger *slog.Logger
}

// Indexer tails the event stream and records one row per closure,
// top-up and sweep. A single Indexer owns its tables; run one per
// database.
type Indexer struct {
	db     *gorm.DB
	source Source
	logger *slog.Logger
}

func New(cfg Config) (*Indexer, error) {
	if cfg.DB == nil {
		return nil, errors.New("indexer: database required")
	}
	if cfg.Source == nil {
		return nil, errors.New("indexer: event source required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: cfg.DB, source: cfg.Source, logger: logger}, nil
}

// Open connects to the history database and runs migrations. A "file:"
// or ":memory:" DSN selects SQLite, anything else is treated as a
// Postgres connection string.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "file:") || strings.Contains(trimmed, ":memory:") {
		dialector = sqlite.Open(trimmed)
	} else {
		dialector = postgres.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Run consumes the event feed until ctx is cancelled or the stream
// closes. It resumes from the highest sequence already persisted, so a
// restarted indexer replays only the gap while the stream history
// still covers it.
func (ix *Indexer) Run(ctx context.Context) error {
	cursor, err := ix.resumeCursor()
	if err != nil {
		return err
	}
	updates, cancel, backlog, err := ix.source.EventsSubscribe(ctx, cursor)
	if err != nil {
		return fmt.Errorf("indexer: subscribe: %w", err)
	}
	defer cancel()
	ix.logger.Info("indexer started", "cursor", cursor, "backlog", len(backlog))
	for _, update := range backlog {
		if err := ix.apply(update); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := ix.apply(update); err != nil {
				return err
			}
		}
	}
}

// resumeCursor returns the highest persisted sequence across all
// tables, or "" when the database is empty.
func (ix *Indexer) resumeCursor() (string, error) {
	var last uint64
	for _, model := range []interface{}{&StakeClosure{}, &PoolTopUp{}, &CustodySweep{}} {
		var seq uint64
		if err := ix.db.Model(model).Select("COALESCE(MAX(sequence), 0)").Scan(&seq).Error; err != nil {
			return "", fmt.Errorf("indexer: resume cursor: %w", err)
		}
		if seq > last {
			last = seq
		}
	}
	if last == 0 {
		return "", nil
	}
	return strconv.FormatUint(last, 10), nil
}

func (ix *Indexer) apply(update core.EventUpdate) error {
	switch update.Type {
	case events.TypeVaultStakeClosed:
		return ix.recordClosure(update)
	case events.TypeVaultPoolToppedUp:
		return ix.recordTopUp(update)
	case events.TypeVaultCustodySwept:
		return ix.recordSweep(update)
	default:
		return nil
	}
}

func (ix *Indexer) recordClosure(update core.EventUpdate) error {
	seen, err := ix.seen(&StakeClosure{}, update.Sequence)
	if err != nil || seen {
		return err
	}
	attrs := update.Attributes
	row := &StakeClosure{
		ID:                uuid.New(),
		Sequence:          update.Sequence,
		Owner:             attrs["owner"],
		Scope:             attrs["scope"],
		ElapsedDays:       uintAttr(attrs, "elapsedDays"),
		PrincipalReturned: amountAttr(attrs, "principalReturned"),
		YieldReturned:     amountAttr(attrs, "yieldReturned"),
		Payout:            amountAttr(attrs, "payout"),
		Penalty:           amountAttr(attrs, "penalty"),
		SharesBurned:      amountAttr(attrs, "sharesBurned"),
		Burned:            amountAttr(attrs, "burned"),
		PoolCredited:      amountAttr(attrs, "poolCredited"),
		TreasuryPaid:      amountAttr(attrs, "treasuryPaid"),
		ClosedAt:          intAttr(attrs, "closedAt"),
	}
	row.Digest = receiptDigest(
		"stake.closed",
		strconv.FormatUint(row.Sequence, 10),
		row.Owner,
		row.Scope,
		strconv.FormatUint(row.ElapsedDays, 10),
		row.PrincipalReturned,
		row.YieldReturned,
		row.Payout,
		row.Penalty,
		row.SharesBurned,
		row.Burned,
		row.PoolCredited,
		row.TreasuryPaid,
		strconv.FormatInt(row.ClosedAt, 10),
	)
	if err := ix.db.Create(row).Error; err != nil {
		return fmt.Errorf("indexer: record closure: %w", err)
	}
	ix.logger.Debug("recorded stake closure", "sequence", row.Sequence, "owner", row.Owner, "scope", row.Scope)
	return nil
}

func (ix *Indexer) recordTopUp(update core.EventUpdate) error {
	seen, err := ix.seen(&PoolTopUp{}, update.Sequence)
	if err != nil || seen {
		return err
	}
	attrs := update.Attributes
	row := &PoolTopUp{
		ID:          uuid.New(),
		Sequence:    update.Sequence,
		Authority:   attrs["authority"],
		Supply:      amountAttr(attrs, "supply"),
		Credited:    amountAttr(attrs, "credited"),
		PoolBalance: amountAttr(attrs, "poolBalance"),
		At:          intAttr(attrs, "at"),
	}
	row.Digest = receiptDigest(
		"pool.topup",
		strconv.FormatUint(row.Sequence, 10),
		row.Authority,
		row.Supply,
		row.Credited,
		row.PoolBalance,
		strconv.FormatInt(row.At, 10),
	)
	if err := ix.db.Create(row).Error; err != nil {
		return fmt.Errorf("indexer: record topup: %w", err)
	}
	ix.logger.Debug("recorded pool topup", "sequence", row.Sequence, "credited", row.Credited)
	return nil
}

func (ix *Indexer) recordSweep(update core.EventUpdate) error {
	seen, err := ix.seen(&CustodySweep{}, update.Sequence)
	if err != nil || seen {
		return err
	}
	attrs := update.Attributes
	row := &CustodySweep{
		ID:          uuid.New(),
		Sequence:    update.Sequence,
		Authority:   attrs["authority"],
		Recipient:   attrs["recipient"],
		Amount:      amountAttr(attrs, "amount"),
		IncidentRef: attrs["incidentRef"],
		At:          intAttr(attrs, "at"),
	}
	row.Digest = receiptDigest(
		"custody.swept",
		strconv.FormatUint(row.Sequence, 10),
		row.Authority,
		row.Recipient,
		row.Amount,
		row.IncidentRef,
		strconv.FormatInt(row.At, 10),
	)
	if err := ix.db.Create(row).Error; err != nil {
		return fmt.Errorf("indexer: record sweep: %w", err)
	}
	ix.logger.Debug("recorded custody sweep", "sequence", row.Sequence, "recipient", row.Recipient)
	return nil
}

// seen reports whether a row for the sequence already exists. The
// stream replays history on reconnect, so duplicates are expected.
func (ix *Indexer) seen(model interface{}, sequence uint64) (bool, error) {
	var count int64
	if err := ix.db.Model(model).Where("sequence = ?", sequence).Count(&count).Error; err != nil {
		return false, fmt.Errorf("indexer: dedupe lookup: %w", err)
	}
	return count > 0, nil
}

// amountAttr reads a numeric attribute, defaulting to "0" for keys the
// event omitted because the value was zero.
func amountAttr(attrs map[string]string, key string) string {
	if value, ok := attrs[key]; ok && strings.TrimSpace(value) != "" {
		return value
	}
	return "0"
}

func uintAttr(attrs map[string]string, key string) uint64 {
	value, err := strconv.ParseUint(attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return value
}

func intAttr(attrs map[string]string, key string) int64 {
	value, err := strconv.ParseInt(attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return value
}
