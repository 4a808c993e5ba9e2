package voucher

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mohasbks/advanced-cid-bot/internal/domain/ledger"
)

const (
	codeLength        = 12
	defaultCodePrefix = "CID"

	// Generated codes skip 0/O and 1/I, which users confuse when typing
	// codes by hand. Custom codes may still use the full A-Z 0-9 range.
	codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxGenerateAttempts = 5
	maxBulkCount        = 100
)

// Store is the persistence surface the service depends on.
type Store interface {
	Create(ctx context.Context, v *Voucher) error
	GetByCode(ctx context.Context, code string) (*Voucher, error)
	Redeem(ctx context.Context, code string, userID int64) (*Voucher, *ledger.Transaction, error)
	ListUses(ctx context.Context, voucherID int64) ([]Use, error)
	Stats(ctx context.Context) (*Stats, error)
}

// UserDirectory gates redemption on account standing.
type UserDirectory interface {
	RequireActiveUser(ctx context.Context, telegramID int64) (*ledger.User, error)
}

type Service struct {
	store Store
	users UserDirectory
}

func NewService(store Store, users UserDirectory) *Service {
	return &Service{store: store, users: users}
}

// Create mints a single voucher. A custom code is normalized and must be
// unused; otherwise a random code is generated.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Voucher, error) {
	if err := validateAmounts(p); err != nil {
		return nil, err
	}

	v := &Voucher{
		CIDAmount: p.CIDAmount,
		USDAmount: p.USDAmount,
	}
	if p.CreatedBy != 0 {
		v.CreatedBy = &p.CreatedBy
	}
	if p.ExpiresIn > 0 {
		expires := time.Now().UTC().Add(p.ExpiresIn)
		v.ExpiresAt = &expires
	}

	if p.CustomCode != "" {
		code := NormalizeCode(p.CustomCode)
		if !validCode(code) {
			return nil, ErrInvalidCode
		}
		v.Code = code
		if err := s.store.Create(ctx, v); err != nil {
			return nil, err
		}
	} else if err := s.createGenerated(ctx, v, defaultCodePrefix); err != nil {
		return nil, err
	}

	log.Info().Str("code", v.Code).Int64("cid", v.CIDAmount).Str("usd", v.USDAmount.String()).Int64("created_by", p.CreatedBy).Msg("voucher created")
	return v, nil
}

// CreateBulk mints up to 100 vouchers with identical value. An optional
// prefix replaces the default one in generated codes.
func (s *Service) CreateBulk(ctx context.Context, count int, p CreateParams, prefix string) ([]string, error) {
	if count < 1 || count > maxBulkCount {
		return nil, ErrInvalidBulkCount
	}
	if err := validateAmounts(p); err != nil {
		return nil, err
	}
	if p.CustomCode != "" {
		return nil, ErrInvalidCode
	}

	codePrefix := defaultCodePrefix
	if prefix != "" {
		codePrefix = NormalizeCode(prefix)
		if len(codePrefix) < 1 || len(codePrefix) > 8 || !charsetOnly(codePrefix) {
			return nil, ErrInvalidCode
		}
	}

	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		v := &Voucher{
			CIDAmount: p.CIDAmount,
			USDAmount: p.USDAmount,
		}
		if p.CreatedBy != 0 {
			v.CreatedBy = &p.CreatedBy
		}
		if p.ExpiresIn > 0 {
			expires := time.Now().UTC().Add(p.ExpiresIn)
			v.ExpiresAt = &expires
		}
		if err := s.createGenerated(ctx, v, codePrefix); err != nil {
			return codes, err
		}
		codes = append(codes, v.Code)
	}

	log.Info().Int("count", len(codes)).Int64("cid", p.CIDAmount).Str("usd", p.USDAmount.String()).Int64("created_by", p.CreatedBy).Msg("bulk vouchers created")
	return codes, nil
}

// Redeem credits the voucher value to the user. Each code redeems once.
func (s *Service) Redeem(ctx context.Context, rawCode string, userID int64) (*Voucher, *ledger.Transaction, error) {
	code := NormalizeCode(rawCode)
	if len(code) < 6 {
		return nil, nil, ErrInvalidCode
	}

	if _, err := s.users.RequireActiveUser(ctx, userID); err != nil {
		return nil, nil, err
	}

	v, posted, err := s.store.Redeem(ctx, code, userID)
	if err != nil {
		return nil, nil, err
	}

	log.Info().Str("code", code).Int64("telegram_id", userID).Int64("cid", v.CIDAmount).Str("usd", v.USDAmount.String()).Msg("voucher redeemed")
	return v, posted, nil
}

func (s *Service) Get(ctx context.Context, rawCode string) (*Voucher, error) {
	code := NormalizeCode(rawCode)
	if len(code) < 6 {
		return nil, ErrInvalidCode
	}
	return s.store.GetByCode(ctx, code)
}

func (s *Service) Uses(ctx context.Context, voucherID int64) ([]Use, error) {
	return s.store.ListUses(ctx, voucherID)
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// createGenerated retries on code collisions, which are rare but possible
// with short random codes.
func (s *Service) createGenerated(ctx context.Context, v *Voucher, prefix string) error {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := generateCode(prefix)
		if err != nil {
			return err
		}
		v.Code = code
		err = s.store.Create(ctx, v)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCodeTaken) {
			return err
		}
	}
	return ErrCodeTaken
}

func validateAmounts(p CreateParams) error {
	if p.CIDAmount < 0 || p.USDAmount.IsNegative() {
		return ErrInvalidAmount
	}
	if p.CIDAmount == 0 && p.USDAmount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

func validCode(code string) bool {
	if len(code) < 6 || len(code) > 20 {
		return false
	}
	return charsetOnly(code)
}

func charsetOnly(code string) bool {
	for _, c := range code {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func generateCode(prefix string) (string, error) {
	n := codeLength - len(prefix)
	if n < 4 {
		n = 4
	}
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		b[i] = codeCharset[idx.Int64()]
	}
	return prefix + string(b), nil
}
