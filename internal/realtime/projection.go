package realtime

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/mariocelzo/Target-sub000/internal/feed"
	"github.com/mariocelzo/Target-sub000/internal/models"
	"github.com/mariocelzo/Target-sub000/internal/services"
	"github.com/mariocelzo/Target-sub000/internal/utils"
)

// ListingView is an active listing together with its current open offers.
type ListingView struct {
	Listing models.Listing `json:"listing"`
	Offers  []models.Offer `json:"offers"`
}

// SoldListingView is a sold listing together with its order.
type SoldListingView struct {
	Listing models.Listing `json:"listing"`
	Order   *models.Order  `json:"order,omitempty"`
}

// DashboardSnapshot is the full materialized view published to a seller
// session: active listings with offers, and sold listings with orders.
type DashboardSnapshot struct {
	Active []ListingView     `json:"active"`
	Sold   []SoldListingView `json:"sold"`
}

// listingState tracks one active listing inside the projection. version is
// the highest feed version applied for this listing; events at or below it
// are stale and dropped, which is what keeps the view per-listing monotonic.
type listingState struct {
	listing models.Listing
	offers  map[utils.SixID]models.Offer
	version uint64
}

// SellerProjection maintains the seller dashboard view for one session. It
// performs one consistent full read on start, then applies change feed events
// incrementally; it never re-issues a full query per event.
type SellerProjection struct {
	sellerID utils.SixID
	listings services.IListingService
	offers   services.IOfferService
	feed     feed.Feed

	mu         sync.Mutex
	active     map[utils.SixID]*listingState
	sold       map[utils.SixID]*SoldListingView
	offerIndex map[utils.SixID]utils.SixID // offer ID -> listing ID

	updates   chan DashboardSnapshot
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// NewSellerProjection creates a projection for the given seller session. Call
// Start to load the initial state and begin consuming the feed.
func NewSellerProjection(sellerID utils.SixID, listings services.IListingService, offers services.IOfferService, f feed.Feed) *SellerProjection {
	return &SellerProjection{
		sellerID:   sellerID,
		listings:   listings,
		offers:     offers,
		feed:       f,
		active:     make(map[utils.SixID]*listingState),
		sold:       make(map[utils.SixID]*SoldListingView),
		offerIndex: make(map[utils.SixID]utils.SixID),
		updates:    make(chan DashboardSnapshot, 1),
		done:       make(chan struct{}),
	}
}

// Start performs the initial full read of both views and opens the feed
// subscriptions. The projection shuts down when ctx is canceled or Close is
// called; either way the subscriptions are released.
func (p *SellerProjection) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.loadInitial(runCtx); err != nil {
		cancel()
		return err
	}

	activeIDs := make([]utils.SixID, 0, len(p.active))
	for id := range p.active {
		activeIDs = append(activeIDs, id)
	}

	offerSub, err := p.feed.Subscribe(runCtx, feed.Filter{
		Collection: "offers",
		Match:      bson.M{"listing_id": bson.M{"$in": activeIDs}},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to offer events: %w", err)
	}
	listingSub, err := p.feed.Subscribe(runCtx, feed.Filter{
		Collection: "listings",
		Match:      bson.M{"seller_id": p.sellerID},
	})
	if err != nil {
		offerSub.Cancel()
		cancel()
		return fmt.Errorf("failed to subscribe to listing events: %w", err)
	}

	// Publish the initial snapshot before the loop goroutine exists: once the
	// loop runs it owns p.updates, including closing it on shutdown.
	p.mu.Lock()
	p.publishLocked()
	p.mu.Unlock()

	go p.loop(runCtx, offerSub, listingSub)
	return nil
}

// Updates returns the channel dashboard snapshots are published on. Delivery
// coalesces: a slow consumer sees the latest state, not every intermediate
// one. The channel is closed when the projection shuts down.
func (p *SellerProjection) Updates() <-chan DashboardSnapshot {
	return p.updates
}

// Close cancels the feed subscriptions and stops publication. Safe to call
// more than once.
func (p *SellerProjection) Close() {
	p.closeOnce.Do(p.cancel)
}

// Done is closed once the projection has fully shut down.
func (p *SellerProjection) Done() <-chan struct{} {
	return p.done
}

func (p *SellerProjection) loadInitial(ctx context.Context) error {
	activeListings, err := p.listings.FindActiveListingsBySeller(ctx, p.sellerID)
	if err != nil {
		return fmt.Errorf("failed to load active listings: %w", err)
	}
	soldListings, err := p.listings.FindSoldListingsBySeller(ctx, p.sellerID)
	if err != nil {
		return fmt.Errorf("failed to load sold listings: %w", err)
	}

	ids := make([]utils.SixID, 0, len(activeListings))
	for _, l := range activeListings {
		ids = append(ids, l.ID)
	}
	offersByListing, err := p.offers.ListOffersForListings(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load open offers: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, l := range activeListings {
		state := &listingState{listing: l, offers: make(map[utils.SixID]models.Offer)}
		for _, o := range offersByListing[l.ID] {
			state.offers[o.ID] = o
			p.offerIndex[o.ID] = l.ID
		}
		p.active[l.ID] = state
	}
	for _, l := range soldListings {
		order, orderErr := p.listings.FindOrderByListingID(ctx, l.ID)
		if orderErr != nil {
			log.Printf("WARN: no order found for sold listing %s: %v", l.ID.String(), orderErr)
			order = nil
		}
		p.sold[l.ID] = &SoldListingView{Listing: l, Order: order}
	}
	return nil
}

func (p *SellerProjection) loop(ctx context.Context, offerSub, listingSub *feed.Subscription) {
	defer close(p.done)
	defer close(p.updates)
	defer offerSub.Cancel()
	defer listingSub.Cancel()

	offerEvents := offerSub.Events()
	listingEvents := listingSub.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-offerEvents:
			if !ok {
				offerEvents = nil
				break
			}
			if p.applyOfferEvent(ev) {
				p.mu.Lock()
				p.publishLocked()
				p.mu.Unlock()
			}
		case ev, ok := <-listingEvents:
			if !ok {
				listingEvents = nil
				break
			}
			if p.applyListingEvent(ctx, ev) {
				p.mu.Lock()
				p.publishLocked()
				p.mu.Unlock()
			}
		}
		if offerEvents == nil && listingEvents == nil {
			return
		}
	}
}

// applyOfferEvent folds one offer change into the affected listing's offer
// sub-list. Returns whether the view changed.
func (p *SellerProjection) applyOfferEvent(ev feed.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Op == feed.OpDelete {
		listingID, tracked := p.offerIndex[ev.DocID]
		if !tracked {
			return false
		}
		delete(p.offerIndex, ev.DocID)
		state, ok := p.active[listingID]
		if !ok {
			return false
		}
		delete(state.offers, ev.DocID)
		if ev.Version > state.version {
			state.version = ev.Version
		}
		return true
	}

	var offer models.Offer
	if err := bson.Unmarshal(ev.Doc, &offer); err != nil {
		log.Printf("WARN: failed to decode offer event %s: %v", ev.DocID.String(), err)
		return false
	}
	state, ok := p.active[offer.ListingID]
	if !ok {
		return false
	}
	if ev.Version <= state.version {
		return false // stale delivery
	}
	state.version = ev.Version

	if offer.Accepted {
		// The accepted offer leaves the open set; the listing's own sold
		// event moves the listing to the sold view.
		delete(state.offers, offer.ID)
		delete(p.offerIndex, offer.ID)
		return true
	}
	state.offers[offer.ID] = offer
	p.offerIndex[offer.ID] = offer.ListingID
	return true
}

// applyListingEvent folds one listing change into the views: sold listings
// move from active to sold (with their order), removed listings drop out.
func (p *SellerProjection) applyListingEvent(ctx context.Context, ev feed.Event) bool {
	if ev.Op == feed.OpDelete {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.dropActiveLocked(ev.DocID)
	}

	var listing models.Listing
	if err := bson.Unmarshal(ev.Doc, &listing); err != nil {
		log.Printf("WARN: failed to decode listing event %s: %v", ev.DocID.String(), err)
		return false
	}
	if listing.SellerID != p.sellerID {
		return false
	}

	// Order lookup happens outside the lock: it is a single-document read
	// done once per sale, not a per-event re-query of the view.
	var order *models.Order
	if listing.Sold {
		found, err := p.listings.FindOrderByListingID(ctx, listing.ID)
		if err != nil {
			log.Printf("WARN: order not yet visible for sold listing %s: %v", listing.ID.String(), err)
		} else {
			order = found
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, isActive := p.active[listing.ID]
	if isActive && ev.Version <= state.version {
		return false // stale delivery
	}

	switch {
	case listing.Removed:
		return p.dropActiveLocked(listing.ID)
	case listing.Sold:
		if _, alreadySold := p.sold[listing.ID]; alreadySold {
			return false
		}
		p.dropActiveLocked(listing.ID)
		p.sold[listing.ID] = &SoldListingView{Listing: listing, Order: order}
		return true
	case isActive:
		state.listing = listing
		state.version = ev.Version
		return true
	default:
		// Listing created after session start: show it, but note its offers
		// only stream in once the session reconnects with a fresh filter.
		p.active[listing.ID] = &listingState{
			listing: listing,
			offers:  make(map[utils.SixID]models.Offer),
			version: ev.Version,
		}
		return true
	}
}

func (p *SellerProjection) dropActiveLocked(listingID utils.SixID) bool {
	state, ok := p.active[listingID]
	if !ok {
		return false
	}
	for offerID := range state.offers {
		delete(p.offerIndex, offerID)
	}
	delete(p.active, listingID)
	return true
}

// publishLocked pushes the current snapshot with latest-wins coalescing: if
// the consumer has not drained the previous snapshot it is replaced.
func (p *SellerProjection) publishLocked() {
	snap := p.snapshotLocked()
	select {
	case p.updates <- snap:
		return
	default:
	}
	select {
	case <-p.updates:
	default:
	}
	select {
	case p.updates <- snap:
	default:
	}
}

func (p *SellerProjection) snapshotLocked() DashboardSnapshot {
	snap := DashboardSnapshot{
		Active: make([]ListingView, 0, len(p.active)),
		Sold:   make([]SoldListingView, 0, len(p.sold)),
	}
	for _, state := range p.active {
		view := ListingView{
			Listing: state.listing,
			Offers:  make([]models.Offer, 0, len(state.offers)),
		}
		for _, o := range state.offers {
			view.Offers = append(view.Offers, o)
		}
		sort.Slice(view.Offers, func(i, j int) bool {
			a, b := view.Offers[i], view.Offers[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID.String() < b.ID.String()
		})
		snap.Active = append(snap.Active, view)
	}
	sort.Slice(snap.Active, func(i, j int) bool {
		return snap.Active[i].Listing.CreatedAt.After(snap.Active[j].Listing.CreatedAt)
	})

	for _, view := range p.sold {
		snap.Sold = append(snap.Sold, *view)
	}
	sort.Slice(snap.Sold, func(i, j int) bool {
		a, b := snap.Sold[i].Listing, snap.Sold[j].Listing
		switch {
		case a.SoldAt == nil:
			return false
		case b.SoldAt == nil:
			return true
		default:
			return a.SoldAt.After(*b.SoldAt)
		}
	})
	return snap
}
