package cart

// Action is a cart state transition. The set is closed: every implementation
// lives in this package and is handled by Reduce.
type Action interface {
	isAction()
}

// AddItem adds one unit of Product, appending a new line on first add.
// It intentionally carries no amount: one dispatch is one unit.
type AddItem struct {
	Product Product
}

// RemoveItem drops the line for ProductID.
type RemoveItem struct {
	ProductID string
}

// Increment adds one unit to an existing line.
type Increment struct {
	ProductID string
}

// Decrement removes one unit from an existing line, dropping it at zero.
type Decrement struct {
	ProductID string
}

// Clear empties the cart.
type Clear struct{}

func (AddItem) isAction()    {}
func (RemoveItem) isAction() {}
func (Increment) isAction()  {}
func (Decrement) isAction()  {}
func (Clear) isAction()      {}

// Reduce applies action to state and returns the new state.
// It never mutates state and never fails; actions naming an absent product
// leave the state unchanged.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case AddItem:
		return addItem(state, a.Product)
	case RemoveItem:
		i := state.index(a.ProductID)
		if i < 0 {
			return state
		}
		items := make([]LineItem, 0, len(state.items)-1)
		items = append(items, state.items[:i]...)
		items = append(items, state.items[i+1:]...)
		return State{items: items}
	case Increment:
		return adjust(state, a.ProductID, 1)
	case Decrement:
		return adjust(state, a.ProductID, -1)
	case Clear:
		return State{}
	default:
		return state
	}
}

func addItem(state State, p Product) State {
	if state.index(p.ID) >= 0 {
		return adjust(state, p.ID, 1)
	}
	snapshot := p
	items := state.Items()
	items = append(items, LineItem{
		ProductID: p.ID,
		Quantity:  1,
		UnitPrice: p.Price,
		Product:   &snapshot,
	})
	return State{items: items}
}

func adjust(state State, productID string, delta int) State {
	i := state.index(productID)
	if i < 0 {
		return state
	}
	if state.items[i].Quantity+delta < 1 {
		return Reduce(state, RemoveItem{ProductID: productID})
	}
	items := state.Items()
	items[i].Quantity += delta
	return State{items: items}
}
