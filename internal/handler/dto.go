package handler

import (
	"time"

	"github.com/hitoshi/biblioteca/internal/model"
)

// formatDate は暦日をYYYY-MM-DD形式にする。
func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// bookResponse は書籍のAPIレスポンス。
type bookResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	ISBN            *string `json:"isbn"`
	PublicationYear int     `json:"publication_year"`
	Publisher       *string `json:"publisher"`
	Available       bool    `json:"available"`
	RegisteredAt    string  `json:"registered_at"`
}

func toBookResponse(b *model.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		PublicationYear: b.PublicationYear,
		Publisher:       b.Publisher,
		Available:       b.Available,
		RegisteredAt:    formatDate(b.RegisteredAt),
	}
}

func toBookResponses(books []*model.Book) []bookResponse {
	out := make([]bookResponse, len(books))
	for i, b := range books {
		out[i] = toBookResponse(b)
	}
	return out
}

// userResponse は利用者のAPIレスポンス。
type userResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	LastName     string  `json:"last_name"`
	Email        string  `json:"email"`
	Phone        *string `json:"phone"`
	RegisteredAt string  `json:"registered_at"`
	Active       bool    `json:"active"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Name:         u.Name,
		LastName:     u.LastName,
		Email:        u.Email,
		Phone:        u.Phone,
		RegisteredAt: formatDate(u.RegisteredAt),
		Active:       u.Active,
	}
}

func toUserResponses(users []*model.User) []userResponse {
	out := make([]userResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	return out
}

// loanResponse は貸出のAPIレスポンス。
type loanResponse struct {
	ID               string  `json:"id"`
	BookID           string  `json:"book_id"`
	UserID           string  `json:"user_id"`
	LoanDate         string  `json:"loan_date"`
	ExpectReturnDate string  `json:"expect_return_date"`
	ActualReturnDate *string `json:"actual_return_date"`
	Status           string  `json:"status"`
}

func toLoanResponse(l *model.Loan) loanResponse {
	resp := loanResponse{
		ID:               l.ID,
		BookID:           l.BookID,
		UserID:           l.UserID,
		LoanDate:         formatDate(l.LoanDate),
		ExpectReturnDate: formatDate(l.ExpectReturnDate),
		Status:           string(l.Status),
	}
	if l.ActualReturnDate != nil {
		d := formatDate(*l.ActualReturnDate)
		resp.ActualReturnDate = &d
	}
	return resp
}

func toLoanResponses(loans []*model.Loan) []loanResponse {
	out := make([]loanResponse, len(loans))
	for i, l := range loans {
		out[i] = toLoanResponse(l)
	}
	return out
}
