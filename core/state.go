package core

// EngineAddress is the identity that holds escrowed items and the treasury
// balance. It is not a public key, so no transaction can be signed for it.
const EngineAddress = "engine"

// Account holds a participant's payment-token balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Collection is a named family of unique items. Immutable once registered.
type Collection struct {
	ID      string `json:"id"` // handle derived from Name
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Creator string `json:"creator"` // pubkey hex of registrant
	Seq     uint64 `json:"seq"`     // registration order, 0-based
}

// Item is a single minted asset inside a collection.
type Item struct {
	Collection   string `json:"collection"`
	ItemID       uint64 `json:"item_id"`
	Owner        string `json:"owner"` // pubkey hex, or EngineAddress while listed
	MetadataHash string `json:"metadata_hash"`
	MintedAt     int64  `json:"minted_at"`
}

// Order is an active sale listing for one item.
type Order struct {
	Seller     string `json:"seller"`
	Collection string `json:"collection"`
	ItemID     uint64 `json:"item_id"`
	Price      uint64 `json:"price"`
	ListedAt   int64  `json:"listed_at"`
}

// SigningPool names one of the three disjoint agreement pools.
type SigningPool string

const (
	PoolApplications SigningPool = "apply"
	PoolInvitations  SigningPool = "invite"
	PoolAgreements   SigningPool = "signed"
)

// SigningAgreement is a platform/creator revenue-share contract. The same
// record shape is used while pending (application or invitation) and once
// active.
type SigningAgreement struct {
	Creator    string `json:"creator"`
	Amount     uint64 `json:"signing_amount"`
	Expiration int64  `json:"signing_expiration"` // unix seconds
}

// Expired reports whether the agreement term has ended at now (unix seconds).
func (a *SigningAgreement) Expired(now int64) bool {
	return now >= a.Expiration
}

// PopularityRecord is the cumulative ranking score of a collection.
type PopularityRecord struct {
	Collection      string `json:"collection"`
	Popularity      uint64 `json:"popularity"`
	PromotionCount  uint64 `json:"promotion_count"`
	PromotionAmount uint64 `json:"promotion_amount"`
}

// LeaderboardEntry is one row of the most recently rebuilt ranking.
type LeaderboardEntry struct {
	Collection string `json:"collection"`
	Name       string `json:"name"`
	Popularity uint64 `json:"popularity"`
}

// Treasury holds the operator identity and the operator-controlled levers.
type Treasury struct {
	Operator            string `json:"operator"`
	CommissionRateBps   uint64 `json:"commission_rate_bps"`
	RevenueShareBps     uint64 `json:"revenue_share_bps"`
	PenaltyAmount       uint64 `json:"penalty_amount"`
	PopularityUnitPrice uint64 `json:"popularity_unit_price"`
}

// DefaultTreasury returns the launch configuration for operator.
func DefaultTreasury(operator string) *Treasury {
	return &Treasury{
		Operator:            operator,
		CommissionRateBps:   30,
		RevenueShareBps:     3000,
		PenaltyAmount:       1000,
		PopularityUnitPrice: 1,
	}
}

// State is the full marketplace state interface. Implementations must be
// snapshot-able so the engine can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Collections. CollectionIDs returns handles in registration order.
	GetCollection(id string) (*Collection, error)
	GetCollectionByName(name string) (*Collection, error)
	SetCollection(c *Collection) error
	CollectionIDs() ([]string, error)

	// Items
	GetItem(collection string, itemID uint64) (*Item, error)
	SetItem(item *Item) error

	// Order book (slot set keyed by collection and item)
	GetOrder(collection string, itemID uint64) (*Order, error)
	OrderAt(index uint64) (*Order, error)
	OrderCount() (uint64, error)
	PutOrder(o *Order) error
	RemoveOrder(collection string, itemID uint64) error

	// Signing pools (one slot set per pool keyed by creator)
	GetAgreement(pool SigningPool, creator string) (*SigningAgreement, error)
	AgreementAt(pool SigningPool, index uint64) (*SigningAgreement, error)
	AgreementCount(pool SigningPool) (uint64, error)
	PutAgreement(pool SigningPool, a *SigningAgreement) error
	RemoveAgreement(pool SigningPool, creator string) error

	// Popularity and leaderboard
	GetPopularity(collection string) (*PopularityRecord, error)
	SetPopularity(r *PopularityRecord) error
	GetLeaderboard() ([]LeaderboardEntry, error)
	SetLeaderboard(entries []LeaderboardEntry) error

	// Treasury config
	GetTreasury() (*Treasury, error)
	SetTreasury(t *Treasury) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing.
	ComputeRoot() (string, error)
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
