package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/blacknight/storefront/internal/cart"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestMaxAllowed(t *testing.T) {
	tests := []struct {
		name   string
		limits cart.Limits
		other  int
		want   int
	}{
		{"unbounded cap uses stock", cart.Limits{Stock: 7}, 100, 7},
		{"cap minus others", cart.Limits{Stock: 10, GlobalCap: intp(4)}, 1, 3},
		{"stock tighter than cap", cart.Limits{Stock: 2, GlobalCap: intp(6)}, 1, 2},
		{"others exceed cap", cart.Limits{Stock: 10, GlobalCap: intp(4)}, 6, 0},
		{"no stock", cart.Limits{Stock: 0, GlobalCap: intp(4)}, 0, 0},
		{"zero cap", cart.Limits{Stock: 5, GlobalCap: intp(0)}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cart.MaxAllowed(tt.limits, tt.other))
		})
	}
}

func TestGuard_GlobalCapScenario(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newMem())
	g := cart.NewGuard(s)

	a := domain.TicketTypeView{ID: 1, Name: "A", Price: 100, Stock: 10, Active: true}
	b := domain.TicketTypeView{ID: 2, Name: "B", Price: 200, Stock: 10, Active: true}
	limA := cart.Limits{Stock: 10, GlobalCap: intp(4)}

	require.NoError(t, s.SetQuantity(ctx, a.ID, a.Name, a.Price, 2))
	require.NoError(t, s.SetQuantity(ctx, b.ID, b.Name, b.Price, 1))

	assert.Equal(t, 3, g.MaxAllowed(a.ID, limA))

	require.NoError(t, g.Increment(ctx, a, limA))
	assert.Equal(t, 3, s.Quantity(a.ID))

	err := g.Increment(ctx, a, limA)
	assert.True(t, errors.Is(err, domain.ErrOverLimit))
	assert.Equal(t, 3, s.Quantity(a.ID))
	assert.False(t, g.CanIncrement(a.ID, limA))
}

func TestGuard_RederivesAfterOtherTypeChanges(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newMem())
	g := cart.NewGuard(s)
	a := domain.TicketTypeView{ID: 1, Name: "A", Price: 100, Stock: 10}
	b := domain.TicketTypeView{ID: 2, Name: "B", Price: 100, Stock: 10}
	lim := cart.Limits{Stock: 10, GlobalCap: intp(3)}

	require.NoError(t, g.Set(ctx, b, lim, 3))
	assert.False(t, g.CanIncrement(a.ID, lim))

	require.NoError(t, g.Decrement(ctx, b))
	assert.True(t, g.CanIncrement(a.ID, lim))
}

func TestGuard_InvariantHoldsUnderRandomIncrements(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newMem())
	g := cart.NewGuard(s)
	types := []domain.TicketTypeView{
		{ID: 1, Name: "A", Stock: 3},
		{ID: 2, Name: "B", Stock: 8},
		{ID: 3, Name: "C", Stock: 1},
	}
	limits := func(tt domain.TicketTypeView) cart.Limits {
		return cart.Limits{Stock: tt.Stock, GlobalCap: intp(6)}
	}

	for i := 0; i < 60; i++ {
		tt := types[i%len(types)]
		before := s.Items()
		err := g.Increment(ctx, tt, limits(tt))
		if err != nil {
			assert.True(t, errors.Is(err, domain.ErrOverLimit))
			assert.Equal(t, before, s.Items())
		}
		for _, other := range types {
			q := s.Quantity(other.ID)
			assert.GreaterOrEqual(t, q, 0)
			assert.LessOrEqual(t, q, cart.MaxAllowed(limits(other), s.TotalQuantity()-q))
		}
	}
	assert.Equal(t, 6, s.TotalQuantity())
}

func TestGuard_DecrementAndSelectable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newMem())
	g := cart.NewGuard(s)
	tt := domain.TicketTypeView{ID: 5, Name: "General", Price: 100, Stock: 0}

	assert.False(t, g.Selectable(cart.Limits{Stock: 0}))
	assert.False(t, g.CanDecrement(tt.ID))
	require.NoError(t, g.Decrement(ctx, tt))
	assert.True(t, s.Empty())

	err := g.Increment(ctx, tt, cart.Limits{Stock: 0})
	assert.True(t, errors.Is(err, domain.ErrOverLimit))
}

func TestGuard_InactiveTypeNotSelectable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newMem())
	g := cart.NewGuard(s)
	ev := domain.Event{ID: 1}
	tt := domain.TicketTypeView{ID: 8, Name: "Backstage", Price: 900, Stock: 40, Active: false}

	l := cart.LimitsFor(ev, tt)
	assert.False(t, g.Selectable(l))
	assert.False(t, g.CanIncrement(tt.ID, l))
	assert.True(t, errors.Is(g.Increment(ctx, tt, l), domain.ErrOverLimit))
	assert.True(t, s.Empty())

	tt.Active = true
	require.NoError(t, g.Increment(ctx, tt, cart.LimitsFor(ev, tt)))
	assert.Equal(t, 1, s.Quantity(tt.ID))
}

func TestCheckTotal(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, newMem())

	assert.True(t, errors.Is(cart.CheckTotal(s, nil), domain.ErrCartEmpty))

	require.NoError(t, s.SetQuantity(ctx, 1, "A", 100, 5))
	assert.NoError(t, cart.CheckTotal(s, nil))
	assert.True(t, errors.Is(cart.CheckTotal(s, intp(4)), domain.ErrOverLimit))
}
