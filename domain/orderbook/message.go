package orderbook

// MsgKind tags an order-entry message. The values double as the tag
// bytes of the on-disk replay record.
type MsgKind byte

const (
	MsgAdd    MsgKind = 'A'
	MsgCancel MsgKind = 'C'
	MsgModify MsgKind = 'M'
	MsgMarket MsgKind = 'X'
	MsgIOC    MsgKind = 'I'
)

// Valid reports whether k is one of the five message tags.
func (k MsgKind) Valid() bool {
	switch k {
	case MsgAdd, MsgCancel, MsgModify, MsgMarket, MsgIOC:
		return true
	}
	return false
}

func (k MsgKind) String() string {
	switch k {
	case MsgAdd:
		return "add"
	case MsgCancel:
		return "cancel"
	case MsgModify:
		return "modify"
	case MsgMarket:
		return "market"
	case MsgIOC:
		return "ioc"
	}
	return "invalid"
}

// Message is one canonical order-entry record. Every field is present
// for every kind; kinds that do not use a field leave it zero (cancel
// ignores side/price/qty, market ignores price).
type Message struct {
	Kind      MsgKind
	OrderID   OrderID
	Side      Side
	Price     Price
	Qty       Qty
	Timestamp uint64
}
