// Package ledger validates ledger entries and computes monthly finance summaries.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/store"
)

// MaxDescription is the longest accepted description, in characters.
const MaxDescription = 255

// CategoryColors are the display colors of the well-known categories.
var CategoryColors = map[string]string{
	"餐饮": "#ef4444",
	"学习": "#3b82f6",
	"交通": "#10b981",
	"娱乐": "#f59e0b",
	"兼职": "#8b5cf6",
	"其他": "#6b7280",
}

// fallbackColors are cycled through for categories without a fixed color.
var fallbackColors = []string{"#ef4444", "#3b82f6", "#10b981", "#f59e0b", "#8b5cf6", "#6b7280"}

// CategoryTotal is the expense total of one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Color    string  `json:"color"`
}

// Summary is a month's income, expense and balance.
type Summary struct {
	Month             string          `json:"month"`
	MonthlyIncome     float64         `json:"monthlyIncome"`
	MonthlyExpense    float64         `json:"monthlyExpense"`
	Balance           float64         `json:"balance"`
	ExpenseByCategory []CategoryTotal `json:"expenseByCategory"`
}

// Validate normalizes and checks a new transaction. Amounts are rounded to cents.
func Validate(t *store.Transaction) error {
	if t.Type != store.Income && t.Type != store.Expense {
		return errmodel.Validation("bad_type", "type must be income or expense", map[string]any{"type": t.Type})
	}
	if !(t.Amount > 0) || math.IsInf(t.Amount, 0) {
		return errmodel.Validation("bad_amount", "amount must be greater than 0", map[string]any{"amount": t.Amount})
	}
	t.Amount = math.Round(t.Amount*100) / 100
	t.Category = strings.TrimSpace(t.Category)
	if t.Category == "" {
		return errmodel.Validation("bad_category", "category is required", nil)
	}
	if utf8.RuneCountInString(t.Description) > MaxDescription {
		return errmodel.Validation("bad_description", fmt.Sprintf("description must be at most %d characters", MaxDescription), nil)
	}
	if _, err := time.Parse(store.DateLayout, t.Date); err != nil {
		return errmodel.Validation("bad_date", "date must be YYYY-MM-DD", map[string]any{"date": t.Date})
	}
	if t.Time != "" {
		clock, err := ParseClock(t.Time)
		if err != nil {
			return err
		}
		t.Time = clock
	}
	return nil
}

// ParseClock accepts "HH:MM" or "HH:MM:SS" and returns "HH:MM:SS".
func ParseClock(s string) (string, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if v, err := time.Parse(layout, s); err == nil {
			return v.Format("15:04:05"), nil
		}
	}
	return "", errmodel.Validation("bad_time", "time must be HH:MM or HH:MM:SS", map[string]any{"time": s})
}

// Summarize reduces a month of transactions. Categories appear in the order
// they are first seen.
func Summarize(month string, txs []store.Transaction) Summary {
	var income, expense int64 // cents
	byCat := map[string]int{}
	var cats []CategoryTotal
	var cents []int64
	next := 0
	for _, t := range txs {
		c := int64(math.Round(t.Amount * 100))
		if t.Type == store.Income {
			income += c
			continue
		}
		expense += c
		i, ok := byCat[t.Category]
		if !ok {
			color, known := CategoryColors[t.Category]
			if !known {
				color = fallbackColors[next%len(fallbackColors)]
				next++
			}
			i = len(cats)
			byCat[t.Category] = i
			cats = append(cats, CategoryTotal{Category: t.Category, Color: color})
			cents = append(cents, 0)
		}
		cents[i] += c
	}
	for i := range cats {
		cats[i].Amount = float64(cents[i]) / 100
	}
	if cats == nil {
		cats = []CategoryTotal{}
	}
	return Summary{
		Month:             month,
		MonthlyIncome:     float64(income) / 100,
		MonthlyExpense:    float64(expense) / 100,
		Balance:           float64(income-expense) / 100,
		ExpenseByCategory: cats,
	}
}

// Stats loads a month from the ledger and summarizes it. An empty month means
// the month containing now.
func Stats(ctx context.Context, ls store.LedgerStore, userID int64, month string, now time.Time) (Summary, error) {
	if month == "" {
		month = now.Format("2006-01")
	}
	if _, _, err := store.MonthRange(month); err != nil {
		return Summary{}, errmodel.Validation("bad_month", "month must be YYYY-MM", map[string]any{"month": month})
	}
	txs, err := ls.ListTransactions(ctx, userID, store.TransactionFilter{Month: month})
	if err != nil {
		return Summary{}, fmt.Errorf("list transactions: %w", err)
	}
	// Oldest first so category order follows the month.
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return Summarize(month, txs), nil
}
