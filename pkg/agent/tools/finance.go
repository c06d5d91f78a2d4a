package tools

import (
	"context"
	"errors"

	"github.com/wilhg/daybook/pkg/agent"
	"github.com/wilhg/daybook/pkg/errmodel"
	"github.com/wilhg/daybook/pkg/ledger"
	"github.com/wilhg/daybook/pkg/store"
)

// TransactionView is a ledger entry as the model sees it.
type TransactionView struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
}

func viewTransaction(t store.Transaction) TransactionView {
	return TransactionView{
		ID:          t.ID,
		Type:        t.Type,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.Date,
		Time:        t.Time,
	}
}

type getTransactionsIn struct {
	Date     string `json:"date,omitempty" jsonschema:"filter by date, YYYY-MM-DD"`
	Type     string `json:"type,omitempty" jsonschema:"income or expense"`
	Category string `json:"category,omitempty" jsonschema:"filter by category, e.g. 餐饮 学习 交通 娱乐 兼职 其他"`
	Month    string `json:"month,omitempty" jsonschema:"filter by month, YYYY-MM"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of entries to return"`
}

type transactionList struct {
	Count        int               `json:"count"`
	Transactions []TransactionView `json:"transactions"`
}

func (k kit) getTransactions() agent.Tool {
	return agent.MustFuncTool("get_transactions",
		"List the user's income and expense records, optionally filtered by date, type, category or month.",
		func(ctx context.Context, in getTransactionsIn) (transactionList, error) {
			if in.Date != "" {
				if err := checkDate(in.Date); err != nil {
					return transactionList{}, err
				}
			}
			if in.Month != "" {
				if _, _, err := store.MonthRange(in.Month); err != nil {
					return transactionList{}, errmodel.Validation("bad_month", "invalid month format, expected YYYY-MM", map[string]any{"month": in.Month})
				}
			}
			txs, err := k.Ledger.ListTransactions(ctx, k.user, store.TransactionFilter{
				Date:     in.Date,
				Type:     in.Type,
				Category: in.Category,
				Month:    in.Month,
				Limit:    in.Limit,
			})
			if err != nil {
				return transactionList{}, err
			}
			out := transactionList{Count: len(txs), Transactions: make([]TransactionView, 0, len(txs))}
			for _, t := range txs {
				out.Transactions = append(out.Transactions, viewTransaction(t))
			}
			return out, nil
		},
		agent.WithEnum("type", store.Income, store.Expense),
		agent.WithDefault("limit", 100),
		agent.WithPermissions(PermLedgerRead),
	)
}

type createTransactionIn struct {
	Type        string  `json:"type" jsonschema:"income or expense"`
	Amount      float64 `json:"amount" jsonschema:"amount, greater than 0"`
	Category    string  `json:"category" jsonschema:"category, e.g. 餐饮 学习 交通 娱乐 兼职 其他"`
	Description string  `json:"description" jsonschema:"what the money was for, at most 255 characters"`
	Date        string  `json:"date" jsonschema:"date, YYYY-MM-DD"`
	Time        string  `json:"time,omitempty" jsonschema:"time, HH:MM or HH:MM:SS"`
}

type transactionResult struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Transaction TransactionView `json:"transaction"`
}

func (k kit) createTransaction() agent.Tool {
	return agent.MustFuncTool("create_transaction", "Record an income or an expense.",
		func(ctx context.Context, in createTransactionIn) (transactionResult, error) {
			t := store.Transaction{
				UserID:      k.user,
				Type:        in.Type,
				Amount:      in.Amount,
				Category:    in.Category,
				Description: in.Description,
				Date:        in.Date,
				Time:        in.Time,
			}
			if err := ledger.Validate(&t); err != nil {
				return transactionResult{}, err
			}
			created, err := k.Ledger.CreateTransaction(ctx, t)
			if err != nil {
				return transactionResult{}, err
			}
			return transactionResult{Success: true, Message: "transaction recorded", Transaction: viewTransaction(created)}, nil
		},
		agent.WithEnum("type", store.Income, store.Expense),
		agent.WithPermissions(PermLedgerWrite),
	)
}

type transactionIDIn struct {
	TransactionID int64 `json:"transaction_id" jsonschema:"id of the record to delete"`
}

type transactionRef struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type deletedTransaction struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	Transaction transactionRef `json:"transaction"`
}

func (k kit) deleteTransaction() agent.Tool {
	return agent.MustFuncTool("delete_transaction", "Delete one of the user's income or expense records.",
		func(ctx context.Context, in transactionIDIn) (deletedTransaction, error) {
			t, err := k.Ledger.DeleteTransaction(ctx, k.user, in.TransactionID)
			if errors.Is(err, store.ErrNotFound) {
				return deletedTransaction{}, notFound("transaction", in.TransactionID)
			}
			if err != nil {
				return deletedTransaction{}, err
			}
			return deletedTransaction{
				Success:     true,
				Message:     "transaction deleted",
				Transaction: transactionRef{ID: t.ID, Type: t.Type, Description: t.Description},
			}, nil
		},
		agent.WithPermissions(PermLedgerWrite),
	)
}

type statsIn struct {
	Month string `json:"month,omitempty" jsonschema:"month to summarize, YYYY-MM; defaults to the current month"`
}

type statsOut struct {
	Success bool           `json:"success"`
	Stats   ledger.Summary `json:"stats"`
}

func (k kit) financeStats() agent.Tool {
	return agent.MustFuncTool("get_finance_stats",
		"Summarize a month: total income, total expense, balance and expense per category.",
		func(ctx context.Context, in statsIn) (statsOut, error) {
			s, err := ledger.Stats(ctx, k.Ledger, k.user, in.Month, k.now())
			if err != nil {
				return statsOut{}, err
			}
			return statsOut{Success: true, Stats: s}, nil
		},
		agent.WithPermissions(PermLedgerRead),
	)
}
