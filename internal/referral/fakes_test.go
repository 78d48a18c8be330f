package referral

import (
	"context"
	"sort"
	"sync"
	"time"

	"ref-service/internal/store"
	"ref-service/pkg/models"

	"github.com/shopspring/decimal"
)

// fakeReferralRepo хранит участников и транзакции в памяти
type fakeReferralRepo struct {
	mu    sync.Mutex
	users map[string]*models.ReferralUser
	txs   []*models.RewardTransaction
	clock time.Time

	// хуки для внедрения ошибок
	createUserErr func(u *models.ReferralUser) error
	createTxErr   func(tx *models.RewardTransaction) error
	addBalanceErr func(userID string) error
	getByCodeErr  error
}

func newFakeReferralRepo() *fakeReferralRepo {
	return &fakeReferralRepo{
		users: make(map[string]*models.ReferralUser),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeReferralRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeReferralRepo) CreateUser(_ context.Context, u *models.ReferralUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createUserErr != nil {
		if err := r.createUserErr(u); err != nil {
			return err
		}
	}
	if _, ok := r.users[u.ID]; ok {
		return store.ErrAlreadyExists
	}
	for _, existing := range r.users {
		if existing.RefCode == u.RefCode {
			return store.ErrDuplicateRefCode
		}
		if existing.Email == u.Email {
			return store.ErrDuplicateEmail
		}
	}

	u.CreatedAt = r.tick()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	r.users[u.ID] = &stored
	return nil
}

func (r *fakeReferralRepo) find(match func(*models.ReferralUser) bool) (*models.ReferralUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeReferralRepo) GetUserByID(_ context.Context, id string) (*models.ReferralUser, error) {
	return r.find(func(u *models.ReferralUser) bool { return u.ID == id })
}

func (r *fakeReferralRepo) GetUserByEmail(_ context.Context, email string) (*models.ReferralUser, error) {
	return r.find(func(u *models.ReferralUser) bool { return u.Email == email })
}

func (r *fakeReferralRepo) GetUserByRefCode(_ context.Context, code string) (*models.ReferralUser, error) {
	if r.getByCodeErr != nil {
		return nil, r.getByCodeErr
	}
	return r.find(func(u *models.ReferralUser) bool { return u.RefCode == code })
}

func (r *fakeReferralRepo) RefCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := r.find(func(u *models.ReferralUser) bool { return u.RefCode == code })
	return err == nil, nil
}

func (r *fakeReferralRepo) CountDirectReferrals(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, u := range r.users {
		if u.RefParent != nil && *u.RefParent == userID {
			count++
		}
	}
	return count, nil
}

func (r *fakeReferralRepo) CreateTransaction(_ context.Context, tx *models.RewardTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createTxErr != nil {
		if err := r.createTxErr(tx); err != nil {
			return err
		}
	}
	tx.CreatedAt = r.tick()
	cp := *tx
	r.txs = append(r.txs, &cp)
	return nil
}

func (r *fakeReferralRepo) AddBalanceJBC(_ context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.addBalanceErr != nil {
		if err := r.addBalanceErr(userID); err != nil {
			return decimal.Zero, err
		}
	}
	u, ok := r.users[userID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	u.BalanceJBC = u.BalanceJBC.Add(amount)
	return u.BalanceJBC, nil
}

func (r *fakeReferralRepo) ListTransactions(_ context.Context, userID string, limit int) ([]*models.RewardTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.RewardTransaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeReferralRepo) transactionsFor(userID string) []*models.RewardTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.RewardTransaction
	for _, tx := range r.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

// fakeIdentityRepo минимальная реализация для выдачи кодов идентичностям
type fakeIdentityRepo struct {
	mu      sync.Mutex
	records map[string]*models.IdentityRecord
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{records: make(map[string]*models.IdentityRecord)}
}

func (r *fakeIdentityRepo) GetByID(_ context.Context, id string) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeIdentityRepo) Create(_ context.Context, rec *models.IdentityRecord) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.ID]; ok {
		return nil, store.ErrAlreadyExists
	}
	cp := *rec
	r.records[rec.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeIdentityRepo) TouchProcessedAt(_ context.Context, id string, at time.Time) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.ProcessedAt = at
	cp := *rec
	return &cp, nil
}

func (r *fakeIdentityRepo) SetRefCode(_ context.Context, id, code string) (*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.RefCode == nil {
		c := code
		rec.RefCode = &c
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeIdentityRepo) List(_ context.Context) ([]*models.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.IdentityRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeIdentityRepo) ListMissingRefCode(ctx context.Context, limit int) ([]*models.IdentityRecord, error) {
	all, _ := r.List(ctx)
	out := make([]*models.IdentityRecord, 0)
	for _, rec := range all {
		if rec.RefCode == nil && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeIdentityRepo) RefCodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.RefCode != nil && *rec.RefCode == code {
			return true, nil
		}
	}
	return false, nil
}

// fakeRecorder считает вызовы метрик
type fakeRecorder struct {
	registrations int
	withParent    int
	rewardsOK     int
	rewardsFailed int
}

func (r *fakeRecorder) RecordRegistration(withParent bool) {
	r.registrations++
	if withParent {
		r.withParent++
	}
}

func (r *fakeRecorder) RecordReward(_ int, _ float64, err error) {
	if err != nil {
		r.rewardsFailed++
		return
	}
	r.rewardsOK++
}
