package domain

import (
	"sort"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/duesledger/internal/payment/domain"
)

// Consolidate folds group-member rows into one GroupCharge per (group, charge key).
// Individual and expense rows are ignored. Output is ordered by due date,
// group, category and amount.
func Consolidate(rows []*paymentdomain.Payment) []GroupCharge {
	index := make(map[string]int)
	var charges []GroupCharge

	for _, row := range rows {
		if row == nil {
			continue
		}
		kind := row.Kind()
		if kind.Tag != paymentdomain.KindGroupMember {
			continue
		}
		key := paymentdomain.KeyOf(*row)
		id := kind.GroupID + "|" + key.String()
		i, ok := index[id]
		if !ok {
			i = len(charges)
			index[id] = i
			charges = append(charges, GroupCharge{GroupID: kind.GroupID, Key: key})
		}
		charges[i].Members = append(charges[i].Members, row)
	}

	for i := range charges {
		summarize(&charges[i])
	}

	sort.SliceStable(charges, func(i, j int) bool {
		a, b := charges[i], charges[j]
		if a.Key.DueDate != b.Key.DueDate {
			return a.Key.DueDate < b.Key.DueDate
		}
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		if a.Key.Category != b.Key.Category {
			return a.Key.Category < b.Key.Category
		}
		return a.Key.Amount.LessThan(b.Key.Amount)
	})
	return charges
}

func summarize(g *GroupCharge) {
	sort.SliceStable(g.Members, func(i, j int) bool {
		mi, mj := g.Members[i].Member(), g.Members[j].Member()
		if mi != mj {
			return mi < mj
		}
		return g.Members[i].ID < g.Members[j].ID
	})

	g.MemberCount = len(g.Members)
	g.Total = g.Key.Amount.Mul(decimal.NewFromInt(int64(g.MemberCount)))
	g.Paid = decimal.Zero
	for _, row := range g.Members {
		g.Paid = g.Paid.Add(row.Contribution())
	}
	g.Pending = g.Total.Sub(g.Paid)
	if g.Pending.IsPositive() {
		g.Status = GroupStatusPending
	} else {
		g.Status = GroupStatusPaid
	}
	if g.MemberCount > 0 {
		g.Representative = g.Members[0].ID
	}
}
