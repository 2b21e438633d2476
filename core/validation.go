package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hc-network/gcond/common"
	"github.com/hc-network/gcond/params"
	"github.com/hc-network/gcond/ribosome"
	"github.com/hc-network/gcond/types"
)

// holdAspect is the hold-side pipeline for one incoming aspect: structural
// integrity, neighborhood membership, dependency-aware validation, then
// the Hold transition. Runs on network handler goroutines, never on the
// reducer.
func (inst *Instance) holdAspect(ctx context.Context, aspect types.EntryAspect) {
	workflow, ok := types.WorkflowForAspect(aspect.Kind)
	if !ok {
		inst.log.WithField("kind", aspect.Kind).Warn("dropping aspect of unknown kind")
		return
	}
	basis, err := aspect.Basis()
	if err != nil {
		inst.log.WithError(err).Warn("dropping aspect without basis")
		return
	}
	if err := aspect.CheckIntegrity(); err != nil {
		inst.log.WithError(err).WithField("basis", basis).Warn("rejecting aspect on integrity")
		return
	}

	var alreadyHeld bool
	addr := aspect.Address()
	inst.store.View(func(st *State) { alreadyHeld = st.Dht.HeldAspects.Contains(addr) })
	if alreadyHeld {
		return
	}
	if !inst.holdsBasis(basis) {
		return
	}

	err = inst.validateAspect(ctx, aspect, workflow)
	switch {
	case err == nil:
		inst.store.Dispatch(Action{Kind: ActionHoldAspect, Payload: holdAspectPayload{Aspect: aspect}})
		inst.retryPending(ctx, aspect)

	case errors.Is(err, types.ErrValidationPending):
		var deps *types.DependenciesError
		pending := &types.PendingValidation{
			Aspect:   aspect,
			Workflow: workflow,
			UUID:     uuid.New().String(),
		}
		if errors.As(err, &deps) {
			pending.Dependencies = deps.Dependencies
		}
		inst.store.Dispatch(Action{Kind: ActionAddPendingValidation, Payload: pendingPayload{Pending: pending}})

	case errors.Is(err, types.ErrValidationFailed):
		inst.log.WithError(err).WithField("basis", basis).Info("validation rejected aspect")
		inst.store.Dispatch(Action{Kind: ActionRejectAspect, Payload: rejectAspectPayload{
			Basis:  basis,
			Reason: err.Error(),
		}})

	default:
		// Transient failure (storage, timeout): leave for gossip to retry.
		inst.log.WithError(err).WithField("basis", basis).Warn("validation errored, aspect dropped")
	}
}

// retryPending re-attempts every pending validation unblocked by a newly
// held aspect. Dependencies are entry addresses; a held aspect makes its
// basis and its carried entry address available. The retry waits for the
// reducer to apply the triggering hold so re-validation reads the shard
// after the dependency landed.
func (inst *Instance) retryPending(ctx context.Context, held types.EntryAspect) {
	addr := held.Address()
	waitCtx, cancel := context.WithTimeout(ctx, params.GetEntryTimeout)
	err := inst.store.WaitFor(waitCtx, func(st *State) bool {
		return st.Dht.HeldAspects.Contains(addr)
	})
	cancel()
	if err != nil {
		// The hold never applied (shard failure); gossip retries later.
		return
	}

	available := map[common.Address]bool{held.Header.EntryAddress: true}
	if basis, err := held.Basis(); err == nil {
		available[basis] = true
	}

	var retries []*types.PendingValidation
	inst.store.View(func(st *State) {
		for _, p := range st.Dht.Pending {
			for dep := range available {
				if p.DependsOn(dep) {
					retries = append(retries, p)
					break
				}
			}
		}
	})
	for _, p := range retries {
		inst.holdAspect(ctx, p.Aspect)
	}
}

// validateAspect runs the workflow-specific dependency checks and the
// application callback for one aspect.
func (inst *Instance) validateAspect(ctx context.Context, aspect types.EntryAspect, workflow types.ValidatingWorkflow) error {
	entry, err := aspect.PendingEntry()
	if err != nil {
		return err
	}
	header := aspect.Header

	switch workflow {
	case types.WorkflowHoldEntry:
		if entry.Type.IsApp() {
			return inst.validateAppEntry(ctx, entry, header, types.LifecycleDht)
		}
		return nil

	case types.WorkflowHoldLink:
		if aspect.Link == nil {
			return types.ValidationFailed("link aspect without link data")
		}
		return inst.validateLink(ctx, *aspect.Link, entry, header, types.LifecycleDht)

	case types.WorkflowRemoveLink:
		rm, err := entry.LinkRemoveData()
		if err != nil {
			return err
		}
		if _, lerr := inst.localEntry(rm.LinkAddAddress); lerr != nil {
			return types.PendingDependencies(rm.LinkAddAddress)
		}
		return nil

	case types.WorkflowUpdateEntry:
		if header.Replaces.IsNull() {
			return types.ValidationFailed("update without replaced entry")
		}
		if _, lerr := inst.localEntry(header.Replaces); lerr != nil {
			return types.PendingDependencies(header.Replaces)
		}
		if entry.Type.IsApp() {
			return inst.validateAppEntry(ctx, entry, header, types.LifecycleDht)
		}
		return nil

	case types.WorkflowRemoveEntry:
		del, err := entry.DeletionData()
		if err != nil {
			return err
		}
		if _, lerr := inst.localEntry(del.DeletedEntryAddress); lerr != nil {
			return types.PendingDependencies(del.DeletedEntryAddress)
		}
		return nil

	default:
		return fmt.Errorf("%w: workflow %q", types.ErrNotImplemented, workflow)
	}
}

// validateAppEntry assembles the validation package and runs the entry
// callback of the declaring zome.
func (inst *Instance) validateAppEntry(ctx context.Context, entry types.Entry, header types.ChainHeader, lifecycle types.EntryLifecycle) error {
	zomeName, _, ok := inst.dna.ZomeForEntryType(string(entry.Type))
	if !ok {
		return types.ValidationFailed(fmt.Sprintf("unknown entry type %q", entry.Type))
	}
	pkg, err := inst.assemblePackage(ctx, zomeName, entry, header)
	if err != nil {
		return err
	}
	data := types.EntryValidationData{
		Entry:     entry,
		Header:    header,
		Package:   pkg,
		Lifecycle: lifecycle,
	}
	return errNotImplementedOK(ribosome.ValidateEntry(inst.runner, inst.dna, zomeName, data, inst))
}

// validateLink checks base and target availability, reporting the missing
// ones as unresolved dependencies, then runs the link callback.
func (inst *Instance) validateLink(ctx context.Context, link types.LinkData, entry types.Entry, header types.ChainHeader, lifecycle types.EntryLifecycle) error {
	var missing []common.Address
	base, berr := inst.localEntry(link.Base)
	if berr != nil {
		missing = append(missing, link.Base)
	}
	target, terr := inst.localEntry(link.Target)
	if terr != nil {
		missing = append(missing, link.Target)
	}
	if len(missing) > 0 {
		return types.PendingDependencies(missing...)
	}

	// Links validate against the zome declaring the base's entry type;
	// system bases fall back to any zome implementing the callback.
	zomeName, _, ok := inst.dna.ZomeForEntryType(string(base.Type))
	if !ok {
		zomeName = inst.anyZome()
		if zomeName == "" {
			return nil
		}
	}
	data := types.LinkValidationData{
		Link:      link,
		Header:    header,
		Base:      &base,
		Target:    &target,
		Lifecycle: lifecycle,
	}
	return errNotImplementedOK(ribosome.ValidateLink(inst.runner, inst.dna, zomeName, data, inst))
}

func (inst *Instance) anyZome() string {
	for name := range inst.dna.Zomes {
		return name
	}
	return ""
}

// assemblePackage builds the validation package the entry type demands.
// Packages describing the author's chain are built locally when this node
// is the author and requested from the source agent otherwise.
func (inst *Instance) assemblePackage(ctx context.Context, zomeName string, entry types.Entry, header types.ChainHeader) (*types.ValidationPackage, error) {
	kind, custom, err := ribosome.ValidationPackageFor(inst.runner, inst.dna, zomeName, string(entry.Type), inst)
	if err != nil {
		return nil, err
	}
	if kind == types.PackageEntry {
		return &types.ValidationPackage{Kind: types.PackageEntry}, nil
	}
	if kind == types.PackageCustom {
		return &types.ValidationPackage{Kind: types.PackageCustom, Custom: custom}, nil
	}

	source := header.Source()
	if source == inst.agent || inst.network == nil {
		return inst.buildLocalPackage(kind, custom)
	}
	return inst.requestPackage(ctx, source, entry.Address(), kind)
}

// buildLocalPackage assembles chain-derived packages from the own chain.
func (inst *Instance) buildLocalPackage(kind types.ValidationPackageKind, custom string) (*types.ValidationPackage, error) {
	pkg := &types.ValidationPackage{Kind: kind, Custom: custom}
	headers, err := inst.chain.Headers()
	if err != nil {
		return nil, err
	}
	if kind == types.PackageChainHeaders || kind == types.PackageChainFull {
		pkg.Headers = headers
	}
	if kind == types.PackageChainEntries || kind == types.PackageChainFull {
		for _, h := range headers {
			if !inst.dna.IsPublic(h.Type) {
				continue
			}
			e, err := inst.chain.GetEntry(h.EntryAddress)
			if err != nil {
				continue
			}
			pkg.Entries = append(pkg.Entries, e)
		}
	}
	return pkg, nil
}

// packageRequestPayload rides inside a direct message when a holder needs
// the author's chain to validate.
type packageRequestPayload struct {
	EntryAddress common.Address              `json:"entry_address"`
	Kind         types.ValidationPackageKind `json:"kind"`
}

// requestPackage asks the source agent for the package over a direct
// message round-trip.
func (inst *Instance) requestPackage(ctx context.Context, source common.Address, entryAddr common.Address, kind types.ValidationPackageKind) (*types.ValidationPackage, error) {
	body, err := json.Marshal(packageRequestPayload{EntryAddress: entryAddr, Kind: kind})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	resp, err := inst.roundTrip(ctx, source, directEnvelope{Type: directPackageRequest, Body: body})
	if err != nil {
		return nil, err
	}
	var pkg types.ValidationPackage
	if err := json.Unmarshal(resp, &pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSerialization, err)
	}
	return &pkg, nil
}
