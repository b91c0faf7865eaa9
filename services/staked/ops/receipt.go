package ops

import (
	"nhbstake/core/events"
	"nhbstake/core/types"
	"nhbstake/crypto"
	"nhbstake/native/stake"
)

type TransferView struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type ConvertView struct {
	Converter       string `json:"converter"`
	Sender          string `json:"sender"`
	Amount          string `json:"amount"`
	UnbondingPeriod uint64 `json:"unbondingPeriod"`
	PairFrom        string `json:"pairFrom"`
	PairTo          string `json:"pairTo"`
}

// Result is the outcome of one applied operation.
type Result struct {
	Transfers []TransferView `json:"transfers"`
	Convert   *ConvertView   `json:"convert,omitempty"`
	Events    []*types.Event `json:"events"`
}

type broadcastable interface {
	Event() *types.Event
}

// NewResult renders a receipt and the events emitted while producing it.
func NewResult(receipt *stake.Receipt, emitted []events.Event) Result {
	out := Result{Transfers: []TransferView{}, Events: []*types.Event{}}
	if receipt != nil {
		for _, t := range receipt.Transfers {
			out.Transfers = append(out.Transfers, TransferView{
				Asset:     t.Asset.String(),
				Recipient: crypto.Format(t.Recipient),
				Amount:    text(t.Amount),
			})
		}
		if c := receipt.Convert; c != nil {
			out.Convert = &ConvertView{
				Converter:       crypto.Format(c.Converter),
				Sender:          crypto.Format(c.Sender),
				Amount:          text(c.Amount),
				UnbondingPeriod: c.UnbondingPeriod,
				PairFrom:        crypto.Format(c.PairFrom),
				PairTo:          crypto.Format(c.PairTo),
			}
		}
	}
	for _, evt := range emitted {
		if b, ok := evt.(broadcastable); ok {
			out.Events = append(out.Events, b.Event())
			continue
		}
		out.Events = append(out.Events, &types.Event{Type: evt.EventType()})
	}
	return out
}
