package types

// Transfer records one completed motes movement. Gas carries the cost
// charged for performing it.
type Transfer struct {
	TransactionHash Digest   `json:"transaction_hash"`
	From            [32]byte `json:"from"`
	To              [32]byte `json:"to"`
	Source          [32]byte `json:"source"`
	Target          [32]byte `json:"target"`
	Amount          U512     `json:"amount"`
	Gas             Gas      `json:"gas"`
}

// Message is a typed event emitted by a contract to a named topic.
type Message struct {
	EntityAddr [32]byte `json:"entity_addr"`
	Topic      string   `json:"topic"`
	Payload    []byte   `json:"payload"`
	BlockIndex uint64   `json:"block_index"`
}

// Phase distinguishes the sub-steps of transaction processing.
type Phase uint8

const (
	PhasePayment Phase = iota
	PhaseSession
	PhaseFinalizePayment
	PhaseSystem
)

func (p Phase) String() string {
	switch p {
	case PhasePayment:
		return "payment"
	case PhaseSession:
		return "session"
	case PhaseFinalizePayment:
		return "finalize-payment"
	case PhaseSystem:
		return "system"
	default:
		return "unknown"
	}
}

// EntityKind distinguishes callers observed through env_info.
type EntityKind uint32

const (
	EntityKindAccount EntityKind = iota
	EntityKindContract
)
