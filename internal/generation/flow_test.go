package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pixelforge/internal/apperr"
	"pixelforge/internal/db/dbtest"
	"pixelforge/internal/domain"
	"pixelforge/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	flow   *Flow
	calls  atomic.Int32
	genErr error
	// onGenerate runs inside the generator, between Admit and Settle.
	onGenerate func()
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	logger, _ := test.NewNullLogger()
	fx := &fixture{db: gdb, ledger: ledger.New(gdb, ledger.WithLogger(logger))}

	gen := GeneratorFunc(func(ctx context.Context, prompt, resolution string) (string, error) {
		fx.calls.Add(1)
		if fx.onGenerate != nil {
			fx.onGenerate()
		}
		if fx.genErr != nil {
			return "", fx.genErr
		}
		return "https://img.example.com/" + resolution + ".png", nil
	})
	fx.flow = NewFlow(gdb, fx.ledger, gen, logger)

	require.NoError(t, gdb.Create(&domain.User{ID: "u1", Email: "u1@example.com"}).Error)
	if b := decimal.RequireFromString(balance); b.IsPositive() {
		_, err := fx.ledger.AddCredits(context.Background(), "u1", b, "seed")
		require.NoError(t, err)
	}
	return fx
}

func (fx *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := fx.ledger.GetBalance(context.Background(), "u1")
	require.NoError(t, err)
	return b
}

func (fx *fixture) imageCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, fx.db.Model(&domain.GeneratedImage{}).Count(&n).Error)
	return n
}

func request(key, resolution string, products int) Request {
	images := make([]string, products)
	for i := range images {
		images[i] = fmt.Sprintf("data:image/png;base64,AAAA%d", i)
	}
	return Request{
		Prompt:         "red sneakers on a wooden table",
		Resolution:     resolution,
		GenerationType: TypeStudio,
		ProductImages:  images,
		IdempotencyKey: key,
	}
}

func TestGenerate_Success(t *testing.T) {
	fx := newFixture(t, "100")
	ctx := context.Background()

	res, err := fx.flow.Generate(ctx, "u1", request("k1", "1920x1080", 2))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, domain.ImageCompleted, res.Status)
	assert.True(t, decimal.NewFromInt(3).Equal(res.CreditsUsed))
	assert.True(t, decimal.NewFromInt(25).Equal(res.NewBalance))
	assert.Contains(t, res.EnhancedPrompt, "red sneakers on a wooden table")
	assert.Equal(t, "https://img.example.com/1920x1080.png", res.ImageURL)

	charge, err := fx.ledger.FindByReference(ctx, "u1", domain.TransactionDeduct, res.ImageID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(75).Equal(charge.Amount))
	assert.True(t, decimal.NewFromInt(25).Equal(charge.BalanceAfter))

	img, err := fx.flow.GetImage(ctx, res.ImageID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImageCompleted, img.Status)
	assert.Equal(t, "k1", img.IdempotencyKey)
}

func TestGenerate_InsufficientAtAdmit(t *testing.T) {
	fx := newFixture(t, "50")

	_, err := fx.flow.Generate(context.Background(), "u1", request("k1", "1920x1080", 2))
	require.True(t, errors.Is(err, apperr.ErrInsufficientBalance))

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.True(t, decimal.NewFromInt(75).Equal(appErr.Required))
	assert.True(t, decimal.NewFromInt(50).Equal(appErr.Current))

	assert.Zero(t, fx.calls.Load(), "generator must not run")
	assert.Zero(t, fx.imageCount(t))
	assert.True(t, decimal.NewFromInt(50).Equal(fx.balance(t)))

	txs, err := fx.ledger.GetTransactions(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "only the seed top-up")
}

func TestGenerate_GeneratorFailureChargesNothing(t *testing.T) {
	fx := newFixture(t, "100")
	fx.genErr = errors.New("upstream 503")

	_, err := fx.flow.Generate(context.Background(), "u1", request("k1", "1024x1024", 1))
	assert.Equal(t, apperr.KindGenerationFailed, apperr.KindOf(err))
	assert.True(t, decimal.NewFromInt(100).Equal(fx.balance(t)))
	assert.Zero(t, fx.imageCount(t))

	// The same key may be retried once the generator recovers.
	fx.genErr = nil
	res, err := fx.flow.Generate(context.Background(), "u1", request("k1", "1024x1024", 1))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestGenerate_SettleRechecksBalance(t *testing.T) {
	fx := newFixture(t, "100")
	ctx := context.Background()
	// Another request drains the wallet after Admit passed.
	fx.onGenerate = func() {
		_, err := fx.ledger.DeductCredits(ctx, "u1", decimal.NewFromInt(50), "concurrent spend")
		require.NoError(t, err)
	}

	_, err := fx.flow.Generate(ctx, "u1", request("k1", "1920x1080", 2))
	require.True(t, errors.Is(err, apperr.ErrInsufficientBalance))
	assert.EqualValues(t, 1, fx.calls.Load())
	assert.Zero(t, fx.imageCount(t), "no image without a deduction")
	assert.True(t, decimal.NewFromInt(50).Equal(fx.balance(t)))

	audit, err := fx.ledger.Replay(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
}

func TestGenerate_IdempotentReplay(t *testing.T) {
	fx := newFixture(t, "100")
	ctx := context.Background()

	first, err := fx.flow.Generate(ctx, "u1", request("same-key", "1024x1024", 1))
	require.NoError(t, err)
	second, err := fx.flow.Generate(ctx, "u1", request("same-key", "1024x1024", 1))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.ImageID, second.ImageID)
	assert.EqualValues(t, 1, fx.calls.Load())
	assert.True(t, decimal.NewFromInt(75).Equal(fx.balance(t)))
}

func TestGenerate_ConcurrentDuplicatesChargeOnce(t *testing.T) {
	fx := newFixture(t, "1000")
	ctx := context.Background()

	const clients = 6
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]int{}
	)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fx.flow.Generate(ctx, "u1", request("double-submit", "3840x2160", 1))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[res.ImageID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1, "every client sees the same image")
	assert.EqualValues(t, 1, fx.imageCount(t))
	assert.True(t, decimal.NewFromInt(875).Equal(fx.balance(t)), "charged once: 1000 - 125")
}

func TestGenerate_Validation(t *testing.T) {
	fx := newFixture(t, "100")

	_, err := fx.flow.Generate(context.Background(), "u1", Request{
		Prompt:         "   ",
		Resolution:     "800x600",
		GenerationType: "cartoon",
		ProductImages:  []string{"a", "b", "c", "d", "e", "f"},
	})
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindInvalidRequest, appErr.Kind)
	for _, field := range []string{"prompt", "resolution", "generationType", "productImages", "idempotencyKey"} {
		assert.Contains(t, appErr.Fields, field)
	}
	assert.Zero(t, fx.calls.Load())
}

func TestMarkFailed_RefundsOnce(t *testing.T) {
	fx := newFixture(t, "200")
	ctx := context.Background()

	res, err := fx.flow.Generate(ctx, "u1", request("k1", "2560x1440", 1))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(125).Equal(res.NewBalance))

	refund, err := fx.flow.MarkFailed(ctx, res.ImageID, "blank output")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionRefund, refund.Type)
	assert.True(t, decimal.NewFromInt(75).Equal(refund.Amount))
	assert.True(t, decimal.NewFromInt(200).Equal(refund.BalanceAfter))
	assert.Equal(t, res.ImageID, refund.ReferenceID)

	img, err := fx.flow.GetImage(ctx, res.ImageID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImageFailed, img.Status)

	_, err = fx.flow.MarkFailed(ctx, res.ImageID, "again")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.True(t, decimal.NewFromInt(200).Equal(fx.balance(t)))

	_, err = fx.flow.MarkFailed(ctx, "img_missing", "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	audit, err := fx.ledger.Replay(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
}

func TestListImages(t *testing.T) {
	fx := newFixture(t, "500")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fx.flow.Generate(ctx, "u1", request(fmt.Sprintf("k%d", i), "1024x1024", 1))
		require.NoError(t, err)
	}
	images, err := fx.flow.ListImages(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.False(t, images[0].CreatedAt.Before(images[1].CreatedAt))

	none, err := fx.flow.ListImages(ctx, "someone-else", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListImages_SameTimestampOrdersByID(t *testing.T) {
	fx := newFixture(t, "0")
	ctx := context.Background()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"img-a", "img-c", "img-b", "img-d"} {
		require.NoError(t, fx.db.Create(&domain.GeneratedImage{
			ID:             id,
			UserID:         "u1",
			IdempotencyKey: fmt.Sprintf("k%d", i),
			OriginalPrompt: "p",
			ImageURL:       "https://img.example.com/" + id + ".png",
			Resolution:     "1024x1024",
			GenerationType: TypeStudio,
			CreditsUsed:    decimal.RequireFromString("10"),
			Status:         domain.ImageCompleted,
			CreatedAt:      at,
		}).Error)
	}

	ids := func(images []domain.GeneratedImage) []string {
		out := make([]string, len(images))
		for i, img := range images {
			out[i] = img.ID
		}
		return out
	}
	first, err := fx.flow.ListImages(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"img-d", "img-c"}, ids(first))

	all, err := fx.flow.ListImages(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"img-d", "img-c", "img-b", "img-a"}, ids(all))
}
