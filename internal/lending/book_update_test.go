package lending

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/biblioteca/internal/catalog"
	"github.com/hitoshi/biblioteca/internal/model"
	"github.com/hitoshi/biblioteca/internal/security"
	"github.com/hitoshi/biblioteca/internal/validation"
)

// newCatalogService は貸出と同じストアを共有する蔵書サービスを生成する。
// 更新入力にISBNを含めないため、書籍リポジトリは参照されない。
func newCatalogService(f *fixture) *catalog.Service {
	return catalog.NewService(
		nil,
		f.store,
		f.store,
		validation.New(),
		security.NewTextSanitizer(),
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		func() time.Time { return f.now },
	)
}

func bookUpdate(title string, available *bool) catalog.BookInput {
	year := 2008
	return catalog.BookInput{
		Title:           title,
		Author:          "Robert Martin",
		PublicationYear: &year,
		Available:       available,
	}
}

func TestBookUpdate_AfterCheckoutKeepsBookUnavailable(t *testing.T) {
	f := newFixture(t)
	books := newCatalogService(f)
	bookID := f.addBook(t, true)
	userID := f.addUser(t)

	_, err := f.svc.Checkout(context.Background(), CheckoutRequest{BookID: bookID, UserID: userID})
	require.NoError(t, err)

	updated, err := books.Update(context.Background(), bookID, bookUpdate("Clean Code 2nd", nil))
	require.NoError(t, err)
	assert.False(t, updated.Available)
	assert.Equal(t, "Clean Code 2nd", f.store.book(bookID).Title)
	assertAvailabilityInvariant(t, f.store)

	yes := true
	_, err = books.Update(context.Background(), bookID, bookUpdate("Clean Code 2nd", &yes))
	requireCode(t, err, model.ErrCodeBookOnLoan)
	assertAvailabilityInvariant(t, f.store)
}

func TestBookUpdate_ConcurrentWithCheckoutsAndReturns(t *testing.T) {
	f := newFixture(t)
	books := newCatalogService(f)

	bookIDs := make([]string, 3)
	for i := range bookIDs {
		bookIDs[i] = f.addBook(t, true)
	}
	userIDs := make([]string, 4)
	for i := range userIDs {
		userIDs[i] = f.addUser(t)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	for w, userID := range userIDs {
		wg.Add(1)
		go func(seed uint64, userID string) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, 7))
			for i := 0; i < 50; i++ {
				loan, err := f.svc.Checkout(context.Background(), CheckoutRequest{
					BookID: bookIDs[r.IntN(len(bookIDs))],
					UserID: userID,
				})
				if err != nil {
					if model.CategoryOf(err) != model.CategoryConflict {
						record(err)
					}
					continue
				}
				if r.IntN(3) > 0 {
					if _, err := f.svc.ReturnLoan(context.Background(), loan.ID); err != nil {
						record(err)
					}
				}
			}
		}(uint64(w), userID)
	}

	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, 11))
			yes := true
			for i := 0; i < 100; i++ {
				var available *bool
				if r.IntN(2) == 0 {
					available = &yes
				}
				_, err := books.Update(context.Background(), bookIDs[r.IntN(len(bookIDs))],
					bookUpdate(fmt.Sprintf("Clean Code rev %d", i), available))
				if err != nil && !model.HasCode(err, model.ErrCodeBookOnLoan) {
					record(err)
				}
			}
		}(uint64(100 + w))
	}

	wg.Wait()

	assert.Empty(t, errs)
	assertAvailabilityInvariant(t, f.store)
}
