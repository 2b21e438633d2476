// Package dht implements the local DHT shard: the set of validated entry
// aspects a node holds, stored in the content-addressed store with CRUD
// and link metadata in the EAV index. Holding and querying are local
// operations; replication and validation live in the core workflows.
package dht

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"github.com/hc-network/gcond/cas"
	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/eav"
	"github.com/hc-network/gcond/types"
)

// aspectAttribute files an aspect blob under its basis entry.
const aspectAttribute = "aspect"

var ErrUnknownAspect = errors.New("dht: unknown aspect kind")

// Shard is one node's slice of the DHT.
type Shard struct {
	mu    sync.Mutex
	store cas.Storage
	meta  eav.Index
	agent common.Address
	log   *logrus.Entry
}

// NewShard builds a shard over the given backends for one agent.
func NewShard(store cas.Storage, meta eav.Index, agent common.Address) *Shard {
	return &Shard{
		store: store,
		meta:  meta,
		agent: agent,
		log:   logrus.WithField("pkg", "dht"),
	}
}

// statusValue stores a CRUD status flag in the EAV value position using
// its stable decimal form.
func statusValue(s types.CrudStatus) common.Address {
	return common.Address(s.String())
}

// HasAspect reports whether the aspect blob itself is held.
func (s *Shard) HasAspect(aspectAddr common.Address) (bool, error) {
	return s.store.Contains(aspectAddr)
}

// Holds reports whether any content for addr is held (entry, header or
// aspect blob).
func (s *Shard) Holds(addr common.Address) (bool, error) {
	return s.store.Contains(addr)
}

// HoldAspect stores a validated aspect: the blob, the entry and header it
// carries, and the metadata triples its variant implies. Idempotent per
// aspect address.
func (s *Shard) HoldAspect(a types.EntryAspect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	basis, err := a.Basis()
	if err != nil {
		return err
	}
	aspectBytes, err := types.CanonicalJSON(a)
	if err != nil {
		return err
	}
	aspectAddr, err := s.store.Add(aspectBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	if err := s.addContent(a); err != nil {
		return err
	}
	if err := s.meta.Add(eav.NewTriple(basis, aspectAttribute, aspectAddr, s.agent)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}

	switch a.Kind {
	case types.AspectContent, types.AspectHeader:
		if err := s.setStatus(basis, types.StatusLive); err != nil {
			return err
		}

	case types.AspectLinkAdd:
		attr := types.LinkTagAttribute(a.Link.LinkType, a.Link.Tag)
		if err := s.meta.Add(eav.NewTriple(a.Link.Base, attr, a.Header.EntryAddress, s.agent)); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
		if err := s.setStatus(a.Header.EntryAddress, types.StatusLive); err != nil {
			return err
		}

	case types.AspectLinkRemove:
		rm, err := a.Entry.LinkRemoveData()
		if err != nil {
			return err
		}
		attr := types.RemovedLinkAttribute(a.Link.LinkType, a.Link.Tag)
		if err := s.meta.Add(eav.NewTriple(a.Link.Base, attr, rm.LinkAddAddress, s.agent)); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
		if err := s.setStatus(rm.LinkAddAddress, types.StatusDeleted); err != nil {
			return err
		}
		if err := s.setCrudLink(rm.LinkAddAddress, a.Header.EntryAddress); err != nil {
			return err
		}

	case types.AspectUpdate:
		if err := s.setStatus(basis, types.StatusModified); err != nil {
			return err
		}
		if err := s.setCrudLink(basis, a.Header.EntryAddress); err != nil {
			return err
		}

	case types.AspectDeletion:
		if err := s.setStatus(basis, types.StatusDeleted); err != nil {
			return err
		}
		if err := s.setCrudLink(basis, a.Header.EntryAddress); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAspect, a.Kind)
	}

	s.log.WithFields(logrus.Fields{"kind": a.Kind, "basis": basis}).Debug("holding aspect")
	return nil
}

// addContent persists the entry and header an aspect carries. A link-add
// aspect that travels without its entry has the %link_add entry rebuilt
// from its link data, so link queries can resolve it.
func (s *Shard) addContent(a types.EntryAspect) error {
	entry := a.Entry
	if entry == nil && a.Kind == types.AspectLinkAdd && a.Link != nil {
		rebuilt := types.NewLinkAddEntry(*a.Link)
		entry = &rebuilt
	}
	if entry != nil {
		b, err := types.CanonicalJSON(*entry)
		if err != nil {
			return err
		}
		if _, err := s.store.Add(b); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStorage, err)
		}
	}
	hb, err := types.CanonicalJSON(a.Header)
	if err != nil {
		return err
	}
	if _, err := s.store.Add(hb); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

func (s *Shard) setStatus(entity common.Address, status types.CrudStatus) error {
	if err := s.meta.Add(eav.NewTriple(entity, types.StatusAttribute, statusValue(status), s.agent)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

func (s *Shard) setCrudLink(from, to common.Address) error {
	if err := s.meta.Add(eav.NewTriple(from, types.LinkAttribute, to, s.agent)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// Status resolves the effective CRUD status of addr from its recorded
// status triples. Statuses only progress away from LIVE, so precedence
// stands in for recency: a deletion outranks a modification outranks the
// initial live marker, regardless of triple timestamps.
func (s *Shard) Status(addr common.Address) (types.CrudStatus, error) {
	set, err := s.meta.Fetch(eav.Addr(addr), eav.Attr(types.StatusAttribute), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	var mask types.CrudStatus
	for _, t := range eav.Triples(set) {
		flag, err := types.ParseCrudStatus(string(t.Value))
		if err != nil {
			continue
		}
		mask |= flag
	}
	switch {
	case mask.Has(types.StatusDeleted):
		return types.StatusDeleted, nil
	case mask.Has(types.StatusRejected):
		return types.StatusRejected, nil
	case mask.Has(types.StatusModified):
		return types.StatusModified, nil
	case mask.Has(types.StatusLocked):
		return types.StatusLocked, nil
	default:
		return types.StatusLive, nil
	}
}

// Entry fetches a held entry by address.
func (s *Shard) Entry(addr common.Address) (types.Entry, error) {
	b, err := s.store.Fetch(addr)
	if err != nil {
		return types.Entry{}, err
	}
	var e types.Entry
	if err := types.FromCanonicalJSON(b, &e); err != nil {
		return types.Entry{}, err
	}
	return e, nil
}

// GetEntry assembles the authoritative result for addr from the held
// aspects: base content, headers, folded CRUD status, and every
// replacement or deletion overlay.
func (s *Shard) GetEntry(addr common.Address, opts types.GetEntryOptions) (*types.EntryResult, error) {
	aspects, err := s.Aspects(addr)
	if err != nil {
		return nil, err
	}
	if len(aspects) == 0 {
		return nil, cas.ErrNotFound
	}

	res := &types.EntryResult{}
	for _, a := range aspects {
		if a.Kind == types.AspectContent && a.Entry != nil {
			entry := *a.Entry
			res.Entry = &entry
		}
		if opts.WithHeaders || a.Kind == types.AspectContent || a.Kind == types.AspectHeader {
			res.Headers = append(res.Headers, a.Header)
		}
	}
	res.Status, err = s.Status(addr)
	if err != nil {
		return nil, err
	}

	// Resolve crud-link overlays into replacements and deletions.
	links, err := s.meta.Fetch(eav.Addr(addr), eav.Attr(types.LinkAttribute), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	for _, t := range eav.Triples(links) {
		target, err := s.Entry(t.Value)
		if err != nil {
			// Overlay content not held yet; skip rather than fail the read.
			continue
		}
		if target.Type == types.TypeDeletion {
			res.DeletedBy = t.Value
		} else {
			res.ReplacedBy = append(res.ReplacedBy, t.Value)
		}
	}

	if opts.StatusRequest != 0 && opts.StatusRequest != types.StatusAny && !res.Status.Has(opts.StatusRequest) {
		return nil, cas.ErrNotFound
	}
	return res, nil
}

// linkAttr splits an EAV attribute back into (kind, type, tag); ok is
// false for attributes that are not link membership records.
func linkAttr(attr string) (removed bool, linkType, tag string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(attr, "link__"):
		rest = strings.TrimPrefix(attr, "link__")
	case strings.HasPrefix(attr, "removed_link__"):
		removed, rest = true, strings.TrimPrefix(attr, "removed_link__")
	default:
		return false, "", "", false
	}
	parts := strings.SplitN(rest, "__", 2)
	if len(parts) != 2 {
		return false, "", "", false
	}
	return removed, parts[0], parts[1], true
}

// GetLinks returns the links on base matching (linkType, tag), filtered by
// CRUD status. Empty linkType or tag matches any.
func (s *Shard) GetLinks(base common.Address, linkType, tag string, opts types.GetLinksOptions) ([]types.LinkResult, error) {
	set, err := s.meta.Fetch(eav.Addr(base), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	filter := opts.StatusFilter
	if filter == 0 {
		filter = types.StatusLive
	}

	seen := mapset.NewSet()
	var out []types.LinkResult
	for _, t := range eav.Triples(set) {
		removed, lt, ltag, ok := linkAttr(t.Attribute)
		if !ok || removed {
			// Removal markers only flip status; membership comes from the
			// original link__ triple.
			continue
		}
		if linkType != "" && lt != linkType {
			continue
		}
		if tag != "" && ltag != tag {
			continue
		}
		linkAddAddr := t.Value
		if seen.Contains(linkAddAddr) {
			continue
		}
		seen.Add(linkAddAddr)

		status, err := s.Status(linkAddAddr)
		if err != nil {
			return nil, err
		}
		if !status.Has(filter) && filter != types.StatusAny {
			continue
		}

		linkEntry, err := s.Entry(linkAddAddr)
		if err != nil {
			continue
		}
		link, err := linkEntry.LinkData()
		if err != nil {
			continue
		}
		out = append(out, types.LinkResult{
			Target:  link.Target,
			LinkAdd: linkAddAddr,
			Type:    lt,
			Tag:     ltag,
			Status:  status,
		})
	}

	if opts.Start > 0 {
		if opts.Start >= len(out) {
			return nil, nil
		}
		out = out[opts.Start:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// AspectBlob decodes a held aspect by its own address.
func (s *Shard) AspectBlob(aspectAddr common.Address) (*types.EntryAspect, error) {
	b, err := s.store.Fetch(aspectAddr)
	if err != nil {
		return nil, err
	}
	var a types.EntryAspect
	if err := types.FromCanonicalJSON(b, &a); err != nil {
		return nil, err
	}
	if a.Kind == "" {
		return nil, fmt.Errorf("%w: %s is not an aspect blob", ErrUnknownAspect, aspectAddr)
	}
	return &a, nil
}

// Aspects returns every held aspect filed under basis.
func (s *Shard) Aspects(basis common.Address) ([]types.EntryAspect, error) {
	set, err := s.meta.Fetch(eav.Addr(basis), eav.Attr(aspectAttribute), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	var out []types.EntryAspect
	for _, t := range eav.Triples(set) {
		b, err := s.store.Fetch(t.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: aspect blob %s: %v", types.ErrStorage, t.Value, err)
		}
		var a types.EntryAspect
		if err := types.FromCanonicalJSON(b, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AspectAddresses returns the addresses of all held aspects, the node's
// gossiping entry list.
func (s *Shard) AspectAddresses() (mapset.Set, error) {
	set, err := s.meta.Fetch(nil, eav.Attr(aspectAttribute), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	out := mapset.NewSet()
	for _, t := range eav.Triples(set) {
		out.Add(t.Value)
	}
	return out, nil
}
