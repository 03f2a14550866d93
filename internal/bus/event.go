package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/lot-auctions/internal/model"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindAuctionCreated   Kind = "auction_created"
	KindAuctionUpdated   Kind = "auction_updated"
	KindAuctionCancelled Kind = "auction_cancelled"
	KindAuctionStarted   Kind = "auction_started"
	KindAuctionFinished  Kind = "auction_finished"
	KindAuctionDeleted   Kind = "auction_deleted"
	KindNewBid           Kind = "new_bid"
	KindBidSuperseded    Kind = "bid_superseded"
)

// Topic names a subscription scope.
type Topic string

// General reaches every observer.
const General Topic = "general"

// AuctionTopic returns the topic of one auction.
func AuctionTopic(auctionID string) Topic {
	return Topic(auctionID)
}

// Topics returns the topics an event is delivered to. The first topic is the
// event's home: consumers that want each event exactly once (the archive,
// SubscribeAll) only take it from there.
func Topics(ev Event) []Topic {
	switch ev.Kind {
	case KindAuctionCreated:
		return []Topic{General}
	case KindNewBid, KindBidSuperseded:
		return []Topic{AuctionTopic(ev.AuctionID)}
	default:
		return []Topic{AuctionTopic(ev.AuctionID), General}
	}
}

// Home reports whether topic is the first topic ev is routed to.
func Home(topic Topic, ev Event) bool {
	return Topics(ev)[0] == topic
}

// Event is one notification. Payload holds one of the payload types below.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	AuctionID string    `json:"auction_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps a new event with a fresh id.
func NewEvent(kind Kind, auctionID string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		AuctionID: auctionID,
		At:        at,
		Payload:   payload,
	}
}

// Envelope is the decoded wire form of an Event with the payload left raw.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	AuctionID string          `json:"auction_id"`
	At        time.Time       `json:"at"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher accepts events for one topic. Implementations must not block.
type Publisher interface {
	Publish(topic Topic, ev Event)
}

// Dispatch publishes ev to every topic its kind is routed to.
func Dispatch(p Publisher, ev Event) {
	for _, topic := range Topics(ev) {
		p.Publish(topic, ev)
	}
}

// Fanout publishes to each of its publishers in order.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(topic Topic, ev Event) {
	for _, p := range f {
		p.Publish(topic, ev)
	}
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Topic, Event) {}

// -----------------------------------------------------------------------------
// Payloads
// -----------------------------------------------------------------------------

// AuctionCreated is the payload of auction_created.
type AuctionCreated struct {
	Auction model.Auction `json:"auction"`
}

// AuctionUpdated is the payload of auction_updated. Changes maps field names
// to their new values.
type AuctionUpdated struct {
	Changes      map[string]any `json:"changes"`
	TimeExtended bool           `json:"time_extended"`
}

// AuctionCancelled is the payload of auction_cancelled.
type AuctionCancelled struct {
	AffectedBidderCount int `json:"affected_bidder_count"`
	BidCount            int `json:"bid_count"`
}

// AuctionStarted is the payload of auction_started.
type AuctionStarted struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// AuctionFinished is the payload of auction_finished. Winner and
// FinalAmount are nil when NoBids is set.
type AuctionFinished struct {
	Winner      *model.Bid       `json:"winner"`
	FinalAmount *decimal.Decimal `json:"final_amount"`
	BidCount    int              `json:"bid_count"`
	NoBids      bool             `json:"no_bids"`
}

// AuctionDeleted is the payload of auction_deleted.
type AuctionDeleted struct {
	LotRef string `json:"lot_ref"`
}

// NewBid is the payload of new_bid.
type NewBid struct {
	Bid          model.Bid       `json:"bid"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	BidCount     int             `json:"bid_count"`
}

// BidSuperseded is the payload of bid_superseded, addressed to the bidder
// who lost the lead.
type BidSuperseded struct {
	BidderID     string          `json:"bidder_id"`
	NewBid       model.Bid       `json:"new_bid"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}
