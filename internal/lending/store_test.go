package lending

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/biblioteca/internal/model"
	"github.com/hitoshi/biblioteca/internal/repository"
)

// memStore はテスト用のインメモリLendingStore兼LoanRepository。
// InTxはミューテックスで直列化し、fnがエラーを返した場合は変更を破棄する。
type memStore struct {
	mu    sync.Mutex
	books map[string]*model.Book
	users map[string]*model.User
	loans map[string]*model.Loan

	// 障害注入
	createLoanErr error
	loanLookupErr map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		books:         make(map[string]*model.Book),
		users:         make(map[string]*model.User),
		loans:         make(map[string]*model.Loan),
		loanLookupErr: make(map[string]error),
	}
}

func (m *memStore) addBook(b *model.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.books[b.ID] = &cp
}

func (m *memStore) addUser(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *memStore) addLoan(l *model.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[l.ID] = copyLoan(l)
}

func (m *memStore) book(id string) *model.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (m *memStore) loan(id string) *model.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return nil
	}
	return copyLoan(l)
}

func (m *memStore) allBooks() []*model.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Book, 0, len(m.books))
	for _, b := range m.books {
		cp := *b
		out = append(out, &cp)
	}
	return out
}

func copyLoan(l *model.Loan) *model.Loan {
	cp := *l
	if l.ActualReturnDate != nil {
		d := *l.ActualReturnDate
		cp.ActualReturnDate = &d
	}
	return &cp
}

func (m *memStore) InTx(ctx context.Context, fn func(tx repository.LendingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		store: m,
		books: make(map[string]*model.Book, len(m.books)),
		loans: make(map[string]*model.Loan, len(m.loans)),
	}
	for id, b := range m.books {
		cp := *b
		tx.books[id] = &cp
	}
	for id, l := range m.loans {
		tx.loans[id] = copyLoan(l)
	}

	if err := fn(tx); err != nil {
		return err
	}
	m.books = tx.books
	m.loans = tx.loans
	return nil
}

// memTx はmemStoreのスナップショットに対する操作。
type memTx struct {
	store *memStore
	books map[string]*model.Book
	loans map[string]*model.Loan
}

func (t *memTx) GetBookForUpdate(ctx context.Context, id string) (*model.Book, error) {
	b, ok := t.books[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) SaveBook(ctx context.Context, book *model.Book) error {
	b, ok := t.books[book.ID]
	if !ok {
		return errors.New("book not found")
	}
	b.Available = book.Available
	return nil
}

func (t *memTx) UpdateBook(ctx context.Context, book *model.Book) error {
	b, ok := t.books[book.ID]
	if !ok {
		return errors.New("book not found")
	}
	if book.ISBN != nil {
		for id, other := range t.books {
			if id != book.ID && other.ISBN != nil && *other.ISBN == *book.ISBN {
				return repository.ErrUniqueViolation
			}
		}
	}
	*b = *book
	return nil
}

func (t *memTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, ok := t.store.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (t *memTx) CountActiveLoansForBook(ctx context.Context, bookID string) (int, error) {
	n := 0
	for _, l := range t.loans {
		if l.BookID == bookID && l.Status == model.LoanStatusActive {
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetLoanForUpdate(ctx context.Context, id string) (*model.Loan, error) {
	if err := t.store.loanLookupErr[id]; err != nil {
		return nil, err
	}
	l, ok := t.loans[id]
	if !ok {
		return nil, nil
	}
	return copyLoan(l), nil
}

func (t *memTx) CreateLoan(ctx context.Context, loan *model.Loan) error {
	if t.store.createLoanErr != nil {
		return t.store.createLoanErr
	}
	for _, l := range t.loans {
		if l.BookID == loan.BookID && l.Status == model.LoanStatusActive {
			return repository.ErrUniqueViolation
		}
	}
	t.loans[loan.ID] = copyLoan(loan)
	return nil
}

func (t *memTx) SaveLoan(ctx context.Context, loan *model.Loan) error {
	l, ok := t.loans[loan.ID]
	if !ok || l.Status != model.LoanStatusActive {
		return repository.ErrStaleLoan
	}
	// book_idは更新しない
	l.Status = loan.Status
	if loan.ActualReturnDate != nil {
		d := *loan.ActualReturnDate
		l.ActualReturnDate = &d
	}
	return nil
}

// --- repository.LoanRepository ---

func (m *memStore) filterLoans(pred func(*model.Loan) bool) []*model.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Loan
	for _, l := range m.loans {
		if pred(l) {
			out = append(out, copyLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) FindByID(ctx context.Context, id string) (*model.Loan, error) {
	return m.loan(id), nil
}

func (m *memStore) FindAll(ctx context.Context) ([]*model.Loan, error) {
	return m.filterLoans(func(*model.Loan) bool { return true }), nil
}

func (m *memStore) FindByStatus(ctx context.Context, status model.LoanStatus) ([]*model.Loan, error) {
	return m.filterLoans(func(l *model.Loan) bool { return l.Status == status }), nil
}

func (m *memStore) FindActiveOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error) {
	return m.filterLoans(func(l *model.Loan) bool {
		return l.Status == model.LoanStatusActive && l.ExpectReturnDate.Before(asOf)
	}), nil
}

func (m *memStore) FindByUser(ctx context.Context, userID string) ([]*model.Loan, error) {
	return m.filterLoans(func(l *model.Loan) bool { return l.UserID == userID }), nil
}

func (m *memStore) FindByBook(ctx context.Context, bookID string) ([]*model.Loan, error) {
	return m.filterLoans(func(l *model.Loan) bool { return l.BookID == bookID }), nil
}

func (m *memStore) CountActiveByBook(ctx context.Context, bookID string) (int, error) {
	return len(m.filterLoans(func(l *model.Loan) bool {
		return l.BookID == bookID && l.Status == model.LoanStatusActive
	})), nil
}

func (m *memStore) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	return len(m.filterLoans(func(l *model.Loan) bool {
		return l.UserID == userID && l.Status == model.LoanStatusActive
	})), nil
}

// hookLoanRepo は延滞候補の取得直後にフックを実行するLoanRepository。
// 候補取得とEXPIRED化の間に割り込む返却を再現するために使う。
type hookLoanRepo struct {
	repository.LoanRepository
	afterFindOverdue func()
}

func (r *hookLoanRepo) FindActiveOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error) {
	loans, err := r.LoanRepository.FindActiveOverdue(ctx, asOf)
	if r.afterFindOverdue != nil {
		r.afterFindOverdue()
	}
	return loans, err
}

// fakeMetrics はmetrics.MetricsCollectorのテスト用実装。
type fakeMetrics struct {
	mu               sync.Mutex
	checkouts        int
	checkoutRejected map[string]int
	returns          int
	returnRejected   map[string]int
	expired          int
	sweeps           int
	httpStatus       map[int]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		checkoutRejected: make(map[string]int),
		returnRejected:   make(map[string]int),
		httpStatus:       make(map[int]int),
	}
}

func (f *fakeMetrics) RecordCheckout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts++
}

func (f *fakeMetrics) RecordCheckoutRejected(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutRejected[code]++
}

func (f *fakeMetrics) RecordReturn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returns++
}

func (f *fakeMetrics) RecordReturnRejected(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.returnRejected[code]++
}

func (f *fakeMetrics) RecordLoansExpired(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired += count
}

func (f *fakeMetrics) RecordSweepDuration(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
}

func (f *fakeMetrics) RecordHTTPStatus(statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.httpStatus[statusCode]++
}

var (
	_ repository.LendingStore   = (*memStore)(nil)
	_ repository.LoanRepository = (*memStore)(nil)
	_ repository.LendingTx      = (*memTx)(nil)
)
