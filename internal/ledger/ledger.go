// Package ledger owns every mutation of a user's wallet balance and the
// append-only transaction log behind it.
//
// Mutations for one user are serialized twice: by an in-process keyed lock,
// and inside the database by a SELECT ... FOR UPDATE row lock plus a
// compare-and-set UPDATE of the balance. The new balance is computed with
// decimal arithmetic in Go so drivers that store money as floating point
// (SQLite) never accumulate rounding error in the log.
package ledger

import (
	"context"
	"errors"
	"time"

	"pixelforge/internal/apperr"
	"pixelforge/internal/domain"
	"pixelforge/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxAmount is the exclusive upper bound of amounts and balances, set by the
// decimal(14,2) money columns.
var MaxAmount = decimal.New(1, 12)

var minorUnit = decimal.New(1, -2) // one cent

const (
	defaultTimeout = 5 * time.Second
	defaultLimit   = 20
	maxLimit       = 100
)

// Entry describes one balance-affecting event before it is applied.
type Entry struct {
	UserID      string
	Amount      decimal.Decimal // positive magnitude; the type decides the sign
	Description string
	ReferenceID string // generated image id for deduct and refund entries
}

// TxFunc runs inside the database transaction that applied rec. Returning an
// error rolls back both the balance change and rec, and the error is passed
// back to the caller unchanged.
type TxFunc func(tx *gorm.DB, rec *domain.WalletTransaction) error

// CommitHook runs after a ledger transaction has committed.
type CommitHook func(ctx context.Context, rec domain.WalletTransaction)

// Option configures a Ledger.
type Option func(*Ledger)

// WithTimeout bounds every ledger database round trip.
func WithTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger used for ledger events.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// OnCommit registers a hook, e.g. cache invalidation.
func OnCommit(h CommitHook) Option {
	return func(l *Ledger) { l.hooks = append(l.hooks, h) }
}

// Ledger is the wallet ledger. It is safe for concurrent use and is meant to
// be constructed once per process.
type Ledger struct {
	db      *gorm.DB
	locks   *keyedMutex
	log     logrus.FieldLogger
	timeout time.Duration
	hooks   []CommitHook
}

// New creates a ledger on top of db.
func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:      db,
		locks:   newKeyedMutex(),
		log:     logrus.StandardLogger(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// callbackError marks errors returned by a TxFunc so they are not mistaken
// for storage failures.
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }
func (e callbackError) Unwrap() error { return e.err }

func (l *Ledger) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

// GetBalance returns the committed balance of userID.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()
	return l.readBalance(l.db.WithContext(ctx), userID)
}

func (l *Ledger) readBalance(tx *gorm.DB, userID string) (decimal.Decimal, error) {
	var user domain.User
	err := tx.Select("id", "wallet_balance").Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, apperr.NotFound("user")
	}
	if err != nil {
		return decimal.Zero, apperr.Storage("balance lookup", err)
	}
	return user.WalletBalance, nil
}

// CheckBalance returns the current balance and whether it is below required.
// The answer is advisory: nothing is reserved.
func (l *Ledger) CheckBalance(ctx context.Context, userID string, required decimal.Decimal) (decimal.Decimal, bool, error) {
	balance, err := l.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, false, err
	}
	return balance, balance.LessThan(required), nil
}

// HasInsufficientBalance reports whether the balance is below required.
func (l *Ledger) HasInsufficientBalance(ctx context.Context, userID string, required decimal.Decimal) (bool, error) {
	_, insufficient, err := l.CheckBalance(ctx, userID, required)
	return insufficient, err
}

// DeductCredits charges amount, failing with InsufficientBalance when the
// balance at execution time is lower.
func (l *Ledger) DeductCredits(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.WalletTransaction, error) {
	return l.apply(ctx, domain.TransactionDeduct, Entry{UserID: userID, Amount: amount, Description: description}, nil)
}

// Deduct charges e.Amount and runs then in the same database transaction.
func (l *Ledger) Deduct(ctx context.Context, e Entry, then TxFunc) (*domain.WalletTransaction, error) {
	return l.apply(ctx, domain.TransactionDeduct, e, then)
}

// AddCredits records a paid top-up.
func (l *Ledger) AddCredits(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.WalletTransaction, error) {
	return l.apply(ctx, domain.TransactionTopup, Entry{UserID: userID, Amount: amount, Description: description}, nil)
}

// AddBonus records operator-granted credit.
func (l *Ledger) AddBonus(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.WalletTransaction, error) {
	return l.apply(ctx, domain.TransactionBonus, Entry{UserID: userID, Amount: amount, Description: description}, nil)
}

// Refund restores a previous deduction and runs then in the same database
// transaction.
func (l *Ledger) Refund(ctx context.Context, e Entry, then TxFunc) (*domain.WalletTransaction, error) {
	return l.apply(ctx, domain.TransactionRefund, e, then)
}

func validate(e Entry) error {
	fields := map[string]string{}
	if e.UserID == "" {
		fields["userId"] = "is required"
	}
	if !e.Amount.IsPositive() {
		fields["amount"] = "must be positive"
	} else if !e.Amount.Equal(e.Amount.Round(2)) {
		fields["amount"] = "must have at most 2 decimal places"
	} else if e.Amount.GreaterThanOrEqual(MaxAmount) {
		fields["amount"] = "must be at most " + MaxAmount.Sub(minorUnit).StringFixed(2)
	}
	if len(fields) > 0 {
		return apperr.InvalidFields(fields)
	}
	return nil
}

// apply validates e, then locks the wallet row and writes the new balance
// and its transaction row in one database transaction. then runs inside it.
func (l *Ledger) apply(ctx context.Context, typ domain.TransactionType, e Entry, then TxFunc) (*domain.WalletTransaction, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	log := l.log.WithFields(logrus.Fields{
		"user_id": e.UserID,
		"type":    typ,
		"amount":  e.Amount.StringFixed(2),
	})

	tctx, cancel := l.bounded(ctx)
	defer cancel()

	unlock, err := l.locks.Lock(tctx, e.UserID)
	if err != nil {
		log.WithError(err).Error("ledger lock wait failed")
		return nil, apperr.Storage("ledger lock", err)
	}
	defer unlock()

	var rec domain.WalletTransaction
	err = l.db.WithContext(tctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "wallet_balance").
			Where("id = ?", e.UserID).
			Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("user")
		}
		if err != nil {
			return err
		}

		current := user.WalletBalance
		balance := current.Add(e.Amount)
		if typ == domain.TransactionDeduct {
			if current.LessThan(e.Amount) {
				return apperr.Insufficient(e.Amount, current)
			}
			balance = current.Sub(e.Amount)
		} else if balance.GreaterThanOrEqual(MaxAmount) {
			return apperr.Invalid("amount", "would raise the balance above "+MaxAmount.Sub(minorUnit).StringFixed(2))
		}

		// Compare-and-set on the value read above: SQLite has no row locks
		// and several processes may share its file.
		res := tx.Model(&domain.User{}).
			Where("id = ? AND wallet_balance = ?", e.UserID, current).
			Update("wallet_balance", balance)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("wallet balance changed concurrently, retry the request")
		}

		credits := decimal.Zero
		if typ.IsCredit() {
			credits = pricing.CreditsFor(e.Amount)
		}
		rec = domain.WalletTransaction{
			UserID:       e.UserID,
			Type:         typ,
			Amount:       e.Amount,
			CreditsAdded: credits,
			BalanceAfter: balance,
			Description:  e.Description,
			ReferenceID:  e.ReferenceID,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if then != nil {
			if err := then(tx, &rec); err != nil {
				return callbackError{err}
			}
		}
		return nil
	})

	if err != nil {
		var cbErr callbackError
		if errors.As(err, &cbErr) {
			log.WithError(cbErr.err).Info("ledger entry rolled back")
			return nil, cbErr.err
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			if appErr.Kind == apperr.KindStorageUnavailable {
				log.WithError(err).Error("ledger entry failed")
			} else {
				log.WithField("reason", appErr.Kind).Info("ledger entry rejected")
			}
			return nil, appErr
		}
		log.WithError(err).Error("ledger entry failed")
		return nil, apperr.Storage("ledger "+string(typ), err)
	}

	log.WithFields(logrus.Fields{
		"transaction_id": rec.ID,
		"balance_after":  rec.BalanceAfter.StringFixed(2),
	}).Info("ledger entry applied")

	for _, h := range l.hooks {
		h(ctx, rec)
	}
	return &rec, nil
}

// GetTransactions returns the most recent entries of userID, newest first.
func (l *Ledger) GetTransactions(ctx context.Context, userID string, limit int) ([]domain.WalletTransaction, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	txs := []domain.WalletTransaction{}
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, apperr.Storage("transaction history", err)
	}
	return txs, nil
}

// FindByReference returns the entry of the given type linked to referenceID.
func (l *Ledger) FindByReference(ctx context.Context, userID string, typ domain.TransactionType, referenceID string) (*domain.WalletTransaction, error) {
	ctx, cancel := l.bounded(ctx)
	defer cancel()

	var rec domain.WalletTransaction
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND reference_id = ?", userID, typ, referenceID).
		Order("id asc").
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(string(typ) + " transaction")
	}
	if err != nil {
		return nil, apperr.Storage("transaction lookup", err)
	}
	return &rec, nil
}
