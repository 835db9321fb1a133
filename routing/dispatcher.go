// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7x/bpa/bpsec"
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/cla"
	"github.com/dtn7x/bpa/editor"
	"github.com/dtn7x/bpa/eid"
	"github.com/dtn7x/bpa/service"
	"github.com/dtn7x/bpa/storage"
)

// Config holds the Dispatcher's tunables, the dispatcher-facing slice of
// spec §4.H's timing behavior.
type Config struct {
	// MaxForwardingDelay bounds a ForwardAckPending deadline: the deadline
	// is min(bundle_expiry, now+MaxForwardingDelay).
	MaxForwardingDelay time.Duration
	// WaitSampleInterval is how long a bundle waits after a NoNeighbour
	// result before the FIB is consulted again.
	WaitSampleInterval time.Duration
	// TombstoneGrace is how long a Tombstone entry is kept (for
	// dedup/idempotency) before it is purged from storage.
	TombstoneGrace time.Duration
	// RetryBaseDelay and RetryMaxAttempts bound the exponential backoff
	// used after a forward error (as opposed to NoNeighbour or TooBig,
	// which have their own defined transitions).
	RetryBaseDelay   time.Duration
	RetryMaxAttempts int
	// StatusReportsEnabled governs whether the dispatcher ever emits
	// administrative status reports at all.
	StatusReportsEnabled bool
	// SweepInterval is how often the background sweep checks for expired
	// and timer-due bundles; must be at least one second.
	SweepInterval time.Duration
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxForwardingDelay:   30 * time.Second,
		WaitSampleInterval:   10 * time.Second,
		TombstoneGrace:       time.Minute,
		RetryBaseDelay:       time.Second,
		RetryMaxAttempts:     5,
		StatusReportsEnabled: true,
		SweepInterval:        time.Second,
	}
}

// Dispatcher is the state-machine owner (spec §4.H): it ingests bundles
// from CLAs, decides local delivery versus forwarding by consulting the
// FIB, and tracks every bundle's BundleStatus through to Tombstone.
// Grounded on pkg/routing/core.go's Core and pkg/routing/processing.go's
// receive/dispatching/forward pipeline.
type Dispatcher struct {
	node eid.ID
	cfg  Config

	meta    storage.MetadataStorage
	bundles storage.BundleStorage
	fib     *FIB
	clas    *cla.Registry
	svcs    *service.Registry
	keys    bpsec.KeySource

	locks *idLocks
	reasm *reassembler
	cron  *cron
	now   func() time.Time

	tombstonesMu sync.Mutex
	tombstones   map[bpv7.BundleID]time.Time
}

// NewDispatcher wires together a Dispatcher. clas and svcs are typically
// constructed with the Dispatcher itself as their Ingress/SinkFactory,
// which requires a two-step construction; see NewDispatcherRegistries for
// the common case.
func NewDispatcher(
	node eid.ID,
	cfg Config,
	meta storage.MetadataStorage,
	bundles storage.BundleStorage,
	fib *FIB,
	clas *cla.Registry,
	svcs *service.Registry,
	keys bpsec.KeySource,
) *Dispatcher {
	return &Dispatcher{
		node:       node,
		cfg:        cfg,
		meta:       meta,
		bundles:    bundles,
		fib:        fib,
		clas:       clas,
		svcs:       svcs,
		keys:       keys,
		locks:      newIDLocks(),
		reasm:      newReassembler(),
		now:        time.Now,
		tombstones: make(map[bpv7.BundleID]time.Time),
	}
}

// NewDispatcherRegistries builds a Dispatcher together with the cla.Registry
// and service.Registry it owns, resolving the constructor cycle described
// in spec §5: the Dispatcher implements cla.Ingress and service.SinkFactory,
// and is the only component holding direct references to either registry.
func NewDispatcherRegistries(
	node eid.ID,
	cfg Config,
	meta storage.MetadataStorage,
	bundles storage.BundleStorage,
	fib *FIB,
	keys bpsec.KeySource,
) (*Dispatcher, *cla.Registry, *service.Registry) {
	d := &Dispatcher{
		node:       node,
		cfg:        cfg,
		meta:       meta,
		bundles:    bundles,
		fib:        fib,
		keys:       keys,
		locks:      newIDLocks(),
		reasm:      newReassembler(),
		now:        time.Now,
		tombstones: make(map[bpv7.BundleID]time.Time),
	}
	d.clas = cla.NewRegistry(d)
	d.svcs = service.NewRegistry(d)
	return d, d.clas, d.svcs
}

// Start begins the background sweep for due timers and bundle expiry.
func (d *Dispatcher) Start() {
	d.cron = newCron()
	interval := d.cfg.SweepInterval
	if interval < time.Second {
		interval = time.Second
	}
	if err := d.cron.register("sweep", func() { d.Sweep(d.now()) }, interval); err != nil {
		log.WithError(err).Warn("dispatcher: failed to register sweep job")
	}
}

// Close stops the background sweep.
func (d *Dispatcher) Close() {
	if d.cron != nil {
		d.cron.stop()
	}
}

// Recover enumerates persisted metadata and re-enters the state machine
// from whatever status is recorded, per spec §4.H's restart guarantee.
func (d *Dispatcher) Recover() error {
	var ids []bpv7.BundleID
	if err := d.meta.GetUnconfirmedBundles(func(id bpv7.BundleID) bool {
		ids = append(ids, id)
		return true
	}); err != nil {
		return err
	}

	for _, id := range ids {
		id := id
		if err := d.locks.withLock(id.String(), func() error { return d.reenter(id) }); err != nil {
			log.WithFields(log.Fields{"bundle": id.String(), "error": err}).Warn("dispatcher: recovery of bundle failed")
		}
	}
	return nil
}

func (d *Dispatcher) reenter(id bpv7.BundleID) error {
	meta, err := d.meta.Load(id)
	if err != nil {
		return err
	}

	switch meta.Status {
	case storage.IngressPending, storage.DispatchPending:
		b, err := d.loadBundle(meta)
		if err != nil {
			return err
		}
		return d.dispatchLocked(b, meta)
	case storage.CollectionPending:
		b, err := d.loadBundle(meta)
		if err != nil {
			return err
		}
		return d.deliverLocked(b, meta)
	case storage.ReassemblyPending:
		data, err := d.bundles.Load(meta.StorageName)
		if err != nil {
			return err
		}
		b, err := bpv7.ParseBundle(bytes.NewReader(data))
		if err != nil {
			return err
		}
		return d.absorbFragment(b, data)
	case storage.ForwardPending, storage.ForwardAckPending, storage.Waiting:
		b, err := d.loadBundle(meta)
		if err != nil {
			return err
		}
		action := d.resolveAction(b.PrimaryBlock.Destination)
		return d.forwardLocked(b, meta, action)
	default:
		return nil
	}
}

func (d *Dispatcher) loadBundle(meta storage.Metadata) (bpv7.Bundle, error) {
	data, err := d.bundles.Load(meta.StorageName)
	if err != nil {
		return bpv7.Bundle{}, err
	}
	b, err := bpv7.ParseBundle(bytes.NewReader(data))
	if err != nil {
		return bpv7.Bundle{}, err
	}
	return b, nil
}

// Ingest implements cla.Ingress: a registered CLA hands received bytes to
// the dispatcher for admission.
func (d *Dispatcher) Ingest(data []byte, receivedFrom string) {
	if err := d.ingest(data, receivedFrom); err != nil {
		log.WithFields(log.Fields{"received_from": receivedFrom, "error": err}).Warn("dispatcher: ingest failed")
	}
}

// ingest implements spec §4.H operation 1.
func (d *Dispatcher) ingest(data []byte, receivedFrom string) error {
	result := bpv7.Parse(data)
	if result.Verdict == bpv7.Invalid {
		log.WithFields(log.Fields{"received_from": receivedFrom, "error": result.Err}).Info("dispatcher: dropping invalid bundle")
		return nil
	}

	canonical := data
	if result.Verdict == bpv7.Rewritten {
		canonical = result.Rewrite
	}
	b := result.Bundle

	if b.PrimaryBlock.HasFragmentation() {
		return d.absorbFragment(b, canonical)
	}

	return d.admit(b, canonical)
}

// persistFragment commits one arriving fragment under ReassemblyPending
// (spec §4.H's restart-reentry guarantee) before it is handed to the
// in-memory reassembler: a restart while a bundle's fragments are
// incomplete must not silently lose the ones already received.
func (d *Dispatcher) persistFragment(b bpv7.Bundle, canonical []byte) error {
	id := b.ID()
	storageName, err := d.bundles.Store(canonical)
	if err != nil {
		return err
	}
	meta := storage.NewMetadata(id, canonical, d.now())
	meta.StorageName = storageName
	meta.Status = storage.ReassemblyPending
	return d.meta.Store(meta)
}

// absorbFragment persists and then feeds one fragment to the reassembler.
// Once every fragment for its bundle-id has arrived, the contributing
// fragments' ReassemblyPending records are retired before the merged
// bundle is handed to admit, matching spec §5's persist-before-side-effect
// ordering (the fragments are gone from storage before the whole bundle's
// processing becomes observable).
func (d *Dispatcher) absorbFragment(b bpv7.Bundle, canonical []byte) error {
	if err := d.persistFragment(b, canonical); err != nil {
		return fmt.Errorf("dispatcher: persisting fragment failed: %w", err)
	}

	whole, complete, fragments, err := d.reasm.add(b)
	if err != nil {
		return fmt.Errorf("dispatcher: reassembly failed: %w", err)
	}
	if !complete {
		return nil
	}

	for _, f := range fragments {
		fid := f.ID()
		fmeta, err := d.meta.Load(fid)
		if err != nil {
			continue
		}
		if err := d.tombstone(fid, fmeta); err != nil {
			return fmt.Errorf("dispatcher: tombstoning reassembled fragment failed: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := whole.WriteBundle(&buf); err != nil {
		return fmt.Errorf("dispatcher: re-encoding reassembled bundle failed: %w", err)
	}

	return d.admit(whole, buf.Bytes())
}

// admit runs BPSec verification and dedup/persistence admission for a
// complete (non-fragment, or freshly reassembled) bundle, then hands it to
// dispatchLocked under its per-bundle-id lock.
func (d *Dispatcher) admit(b bpv7.Bundle, canonical []byte) error {
	if err := d.verifySecurity(&b); err != nil {
		var drop *errDropBundle
		if !errors.As(err, &drop) {
			return err
		}
		log.WithFields(log.Fields{"bundle": b.ID().String(), "error": drop.cause}).Warn("dispatcher: dropping bundle after security failure")
		d.notify(b, admin.DeletedBundle, drop.reason, bpv7.StatusRequestDeletion)
		return nil
	}

	id := b.ID()
	key := id.String()

	return d.locks.withLock(key, func() error {
		hash := storage.ContentHash(canonical)

		if existing, err := d.meta.Load(id); err == nil {
			if existing.Status == storage.Tombstone || existing.ContentHash == hash {
				return nil
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		storageName, err := d.bundles.Store(canonical)
		if err != nil {
			return err
		}

		meta := storage.NewMetadata(id, canonical, d.now())
		meta.StorageName = storageName
		if err := d.meta.Store(meta); err != nil {
			return err
		}

		d.notify(b, admin.ReceivedBundle, admin.NoInformation, bpv7.StatusRequestReception)

		meta.Status = storage.DispatchPending
		if err := d.meta.SetStatus(id, storage.DispatchPending); err != nil {
			return err
		}

		return d.dispatchLocked(b, meta)
	})
}

// dispatchLocked implements spec §4.H operation 2. Caller must already hold
// the per-bundle-id lock.
func (d *Dispatcher) dispatchLocked(b bpv7.Bundle, meta storage.Metadata) error {
	if d.svcs.Matches(b.PrimaryBlock.Destination) {
		return d.deliverLocked(b, meta)
	}

	action := d.resolveAction(b.PrimaryBlock.Destination)
	return d.forwardLocked(b, meta, action)
}

// deliverLocked hands b to every matching local Service, committing
// CollectionPending first (spec §5/§4.H): a crash between the commit and
// the Tombstone transition re-enters here on recovery and simply redelivers,
// rather than losing the bundle outright. Caller must already hold the
// per-bundle-id lock.
func (d *Dispatcher) deliverLocked(b bpv7.Bundle, meta storage.Metadata) error {
	if meta.Status != storage.CollectionPending {
		meta.Status = storage.CollectionPending
		if err := d.meta.Store(meta); err != nil {
			return err
		}
	}

	d.svcs.Deliver(b)

	if err := d.tombstone(b.ID(), meta); err != nil {
		return err
	}
	d.notify(b, admin.DeliveredBundle, admin.NoInformation, bpv7.StatusRequestDelivery)
	return nil
}

// resolveAction recursively re-resolves Via actions until a terminal
// decision is reached, detecting cycles per spec §4.I.
func (d *Dispatcher) resolveAction(dest eid.ID) Action {
	visited := map[string]bool{}
	cur := dest

	for {
		key := cur.String()
		if visited[key] {
			reason := admin.NoRouteToDestination
			return Drop(&reason)
		}
		visited[key] = true

		action := d.fib.Resolve(cur, d.now())
		if action.Kind != ActionVia {
			return action
		}
		cur = action.NextHop
	}
}

// forwardLocked implements spec §4.H operation 3. Caller must already hold
// the per-bundle-id lock.
func (d *Dispatcher) forwardLocked(b bpv7.Bundle, meta storage.Metadata, action Action) error {
	id := b.ID()

	switch action.Kind {
	case ActionDrop:
		reason := admin.NoInformation
		if action.Reason != nil {
			reason = *action.Reason
		}
		if err := d.tombstone(id, meta); err != nil {
			return err
		}
		d.notify(b, admin.DeletedBundle, reason, bpv7.StatusRequestDeletion)
		return nil

	case ActionStore:
		meta.Status = storage.Waiting
		meta.Deadline = action.Until
		return d.meta.Store(meta)

	case ActionVia:
		return d.forwardVia(b, meta, action.NextHop)

	default:
		return fmt.Errorf("dispatcher: unknown action kind %v", action.Kind)
	}
}

// forwardVia prepares b for transmission toward nextHop and hands it to the
// CLA registry, per spec §4.H operation 3's editing requirements.
func (d *Dispatcher) forwardVia(b bpv7.Bundle, meta storage.Metadata, nextHop eid.ID) error {
	id := b.ID()

	if b.PrimaryBlock.IsLifetimeExceeded() {
		return d.expireLocked(b, meta)
	}

	if hcBlock, err := b.ExtensionBlock(bpv7.ExtBlockTypeHopCountBlock); err == nil {
		hc := hcBlock.Value.(*bpv7.HopCountBlock)
		if hc.Increment() {
			reason := admin.HopLimitExceeded
			return d.forwardLocked(b, meta, Drop(&reason))
		}
	}

	if d.node.Kind == eid.KindIpn {
		b.PrimaryBlock.SourceNode = b.PrimaryBlock.SourceNode.Resolve(d.node.AllocatorID, d.node.NodeNumber)
		b.PrimaryBlock.ReportTo = b.PrimaryBlock.ReportTo.Resolve(d.node.AllocatorID, d.node.NodeNumber)
	}

	if pnBlock, err := b.ExtensionBlock(bpv7.ExtBlockTypePreviousNodeBlock); err == nil {
		pnBlock.Value = bpv7.NewPreviousNodeBlock(d.node)
	} else {
		b.AddExtensionBlock(bpv7.NewCanonicalBlock(0, 0, bpv7.NewPreviousNodeBlock(d.node)))
	}

	bytesOut, err := editor.New(b).Rebuild()
	if err != nil {
		return fmt.Errorf("dispatcher: rebuild before forward failed: %w", err)
	}

	meta.Status = storage.ForwardPending
	if err := d.meta.Store(meta); err != nil {
		return err
	}

	result, mtu, err := d.clas.Forward(nextHop, bytesOut, 0)
	if err != nil {
		return d.forwardRetry(b, meta, nextHop, err)
	}

	switch result {
	case cla.Sent:
		deadline := d.now().Add(d.cfg.MaxForwardingDelay)
		if expiry := bundleExpiry(b); expiry.Before(deadline) {
			deadline = expiry
		}
		meta.Status = storage.ForwardAckPending
		meta.Deadline = deadline
		meta.Attempts = 0
		if err := d.meta.Store(meta); err != nil {
			return err
		}
		d.notify(b, admin.ForwardedBundle, admin.NoInformation, bpv7.StatusRequestForward)
		return nil

	case cla.NoNeighbour:
		meta.Status = storage.Waiting
		meta.Deadline = d.now().Add(d.cfg.WaitSampleInterval)
		return d.meta.Store(meta)

	case cla.TooBig:
		return d.fragmentAndForward(b, meta, nextHop, int(mtu))

	default:
		return fmt.Errorf("dispatcher: unknown forward result %v for bundle %s", result, id)
	}
}

func (d *Dispatcher) fragmentAndForward(b bpv7.Bundle, meta storage.Metadata, nextHop eid.ID, mtu int) error {
	pieces, err := fragment(b, mtu)
	if err != nil {
		reason := admin.BlockUnintelligible
		return d.forwardLocked(b, meta, Drop(&reason))
	}

	for _, piece := range pieces {
		canonical, err := editor.New(piece).Rebuild()
		if err != nil {
			return err
		}

		storageName, err := d.bundles.Store(canonical)
		if err != nil {
			return err
		}
		pieceMeta := storage.NewMetadata(piece.ID(), canonical, d.now())
		pieceMeta.StorageName = storageName
		pieceMeta.Status = storage.DispatchPending
		if err := d.meta.Store(pieceMeta); err != nil {
			return err
		}

		if err := d.forwardVia(piece, pieceMeta, nextHop); err != nil {
			log.WithFields(log.Fields{"bundle": piece.ID().String(), "error": err}).Warn("dispatcher: forwarding fragment failed")
		}
	}

	return d.tombstone(b.ID(), meta)
}

// forwardRetry implements the bounded-retry-with-exponential-backoff
// transition for a transport error other than NoNeighbour/TooBig.
func (d *Dispatcher) forwardRetry(b bpv7.Bundle, meta storage.Metadata, nextHop eid.ID, cause error) error {
	if meta.Attempts >= d.cfg.RetryMaxAttempts {
		log.WithFields(log.Fields{"bundle": b.ID().String(), "error": cause}).Warn("dispatcher: forward retries exhausted")
		reason := admin.NoNextNodeContact
		return d.forwardLocked(b, meta, Drop(&reason))
	}

	meta.Attempts++
	backoff := d.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(meta.Attempts-1)))
	deadline := d.now().Add(backoff)
	if expiry := bundleExpiry(b); expiry.Before(deadline) {
		deadline = expiry
	}

	meta.Status = storage.Waiting
	meta.Deadline = deadline
	return d.meta.Store(meta)
}

// expireLocked implements spec §4.H operation 4. Caller must already hold
// the per-bundle-id lock.
func (d *Dispatcher) expireLocked(b bpv7.Bundle, meta storage.Metadata) error {
	if err := d.tombstone(b.ID(), meta); err != nil {
		return err
	}
	d.notify(b, admin.DeletedBundle, admin.LifetimeExpired, bpv7.StatusRequestDeletion)
	return nil
}

func (d *Dispatcher) tombstone(id bpv7.BundleID, meta storage.Metadata) error {
	meta.Status = storage.Tombstone
	meta.Deadline = d.now().Add(d.cfg.TombstoneGrace)
	if err := d.meta.Store(meta); err != nil {
		return err
	}
	if meta.StorageName != "" {
		_ = d.bundles.Remove(meta.StorageName)
	}

	d.tombstonesMu.Lock()
	d.tombstones[id] = meta.Deadline
	d.tombstonesMu.Unlock()
	return nil
}

// bundleExpiry returns the wall-clock time at which b's lifetime elapses.
func bundleExpiry(b bpv7.Bundle) time.Time {
	if b.PrimaryBlock.CreationTimestamp.IsZeroTime() {
		return time.Now().Add(24 * time.Hour)
	}
	return b.PrimaryBlock.CreationTimestamp.DtnTime().Time().
		Add(time.Duration(b.PrimaryBlock.Lifetime) * time.Millisecond)
}

// Sweep walks every non-tombstoned bundle and fires whichever transition is
// due at now: Waiting/ForwardAckPending retries, Tombstone purges, and
// lifetime expiry regardless of status.
func (d *Dispatcher) Sweep(now time.Time) {
	var due []bpv7.BundleID
	_ = d.meta.GetUnconfirmedBundles(func(id bpv7.BundleID) bool {
		due = append(due, id)
		return true
	})

	for _, id := range due {
		id := id
		if err := d.locks.withLock(id.String(), func() error { return d.sweepOne(id, now) }); err != nil {
			log.WithFields(log.Fields{"bundle": id.String(), "error": err}).Warn("dispatcher: sweep of bundle failed")
		}
	}

	d.purgeTombstones(now)
}

func (d *Dispatcher) sweepOne(id bpv7.BundleID, now time.Time) error {
	meta, err := d.meta.Load(id)
	if err != nil {
		return err
	}
	if meta.Status == storage.Tombstone {
		return nil
	}

	b, err := d.loadBundle(meta)
	if err != nil {
		return err
	}

	if b.PrimaryBlock.IsLifetimeExceeded() {
		return d.expireLocked(b, meta)
	}

	switch meta.Status {
	case storage.Waiting, storage.ForwardAckPending:
		if meta.Deadline.IsZero() || now.Before(meta.Deadline) {
			return nil
		}
		action := d.resolveAction(b.PrimaryBlock.Destination)
		return d.forwardLocked(b, meta, action)
	default:
		return nil
	}
}

// purgeTombstones drops Metadata for bundle-ids whose Tombstone grace
// period has elapsed. GetUnconfirmedBundles only enumerates bundles still
// short of Tombstone, so the dispatcher tracks grace deadlines for
// tombstoned ids itself rather than re-deriving them from storage.
func (d *Dispatcher) purgeTombstones(now time.Time) {
	var due []bpv7.BundleID

	d.tombstonesMu.Lock()
	for id, deadline := range d.tombstones {
		if !now.Before(deadline) {
			due = append(due, id)
		}
	}
	for _, id := range due {
		delete(d.tombstones, id)
	}
	d.tombstonesMu.Unlock()

	for _, id := range due {
		if err := d.meta.Remove(id); err != nil {
			log.WithFields(log.Fields{"bundle": id.String(), "error": err}).Warn("dispatcher: purging tombstoned metadata failed")
		}
		d.locks.forget(id.String())
	}
}

// send implements the local-origination half of service.Sink (spec §4.K):
// build a new bundle carrying payload from source to destination and feed
// it to the dispatcher as an outbound transmission.
func (d *Dispatcher) send(source, destination eid.ID, payload []byte, lifetimeMillis uint64) (bpv7.BundleID, error) {
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, destination, source, ts, lifetimeMillis)
	payloadBlock := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(payload))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payloadBlock})
	if err != nil {
		return bpv7.BundleID{}, err
	}
	return d.originate(b)
}

// originate stores and dispatches a freshly built, locally-originated
// bundle, the common tail shared by send and sendStatusReport.
func (d *Dispatcher) originate(b bpv7.Bundle) (bpv7.BundleID, error) {
	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		return bpv7.BundleID{}, err
	}
	canonical := buf.Bytes()

	id := b.ID()
	err := d.locks.withLock(id.String(), func() error {
		storageName, err := d.bundles.Store(canonical)
		if err != nil {
			return err
		}
		meta := storage.NewMetadata(id, canonical, d.now())
		meta.StorageName = storageName
		if err := d.meta.Store(meta); err != nil {
			return err
		}
		meta.Status = storage.DispatchPending
		if err := d.meta.SetStatus(id, storage.DispatchPending); err != nil {
			return err
		}
		return d.dispatchLocked(b, meta)
	})
	if err != nil {
		return bpv7.BundleID{}, err
	}
	return id, nil
}

// notify reports a lifecycle event for b to whatever is waiting on it: the
// local Service that originated b, via the in-process on_status_notify
// callback (spec §4.K, always delivered, independent of the sender's
// status-report-request flags), and, when the bundle's status-report-request
// flag for this event is set, a wire administrative status report sent back
// to ReportTo (spec §4.H/§6). requested is the control flag bit gating the
// wire report for this particular status kind.
func (d *Dispatcher) notify(b bpv7.Bundle, status admin.StatusInformationPos, reason admin.StatusReportReason, requested bpv7.BundleControlFlags) {
	d.svcs.NotifyStatus(b.PrimaryBlock.SourceNode, b.ID(), statusKind(status), reason, bpv7.DtnTimeNow())

	if d.cfg.StatusReportsEnabled && b.PrimaryBlock.BundleControlFlags.Has(requested) {
		d.sendStatusReport(b, status, reason)
	}
}

// statusKind maps an RFC 9171 status-information position to the local
// service-registry's StatusKind, the two enumerations spec §4.K and §4.H
// otherwise keep separate.
func statusKind(status admin.StatusInformationPos) service.StatusKind {
	switch status {
	case admin.ReceivedBundle:
		return service.StatusReceived
	case admin.ForwardedBundle:
		return service.StatusForwarded
	case admin.DeliveredBundle:
		return service.StatusDelivered
	default:
		return service.StatusDeleted
	}
}

// sendStatusReport builds and transmits an administrative status report
// bundle in response to b, grounded on Core.SendStatusReport. The
// Administrative Record Payload flag is set on the report's own primary
// block so a receiver never recurses into generating a report about a
// report.
func (d *Dispatcher) sendStatusReport(b bpv7.Bundle, status admin.StatusInformationPos, reason admin.StatusReportReason) {
	if b.PrimaryBlock.BundleControlFlags.Has(bpv7.AdministrativeRecordPayload) {
		return
	}

	reportTo := b.PrimaryBlock.ReportTo
	if reportTo.IsNull() {
		return
	}

	sr := admin.NewStatusReport(b, status, reason, bpv7.DtnTimeNow())
	block, err := admin.ToCanonicalBlock(sr)
	if err != nil {
		log.WithFields(log.Fields{"bundle": b.ID().String(), "error": err}).Warn("dispatcher: encoding status report failed")
		return
	}

	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(bpv7.AdministrativeRecordPayload, reportTo, d.node, ts, uint64((60 * time.Minute).Milliseconds()))

	out, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{block})
	if err != nil {
		log.WithFields(log.Fields{"bundle": b.ID().String(), "error": err}).Warn("dispatcher: building status report bundle failed")
		return
	}

	if _, err := d.originate(out); err != nil {
		log.WithFields(log.Fields{"bundle": b.ID().String(), "error": err}).Warn("dispatcher: transmitting status report failed")
	}
}
