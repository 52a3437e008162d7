// Package signing implements the platform/creator revenue-share agreement
// lifecycle. A creator is in at most one of three pools at a time: pending
// application, pending invitation or active agreement.
//
// Agreements are never swept on expiry. Operations that depend on an
// agreement being in force check the term when they run.
package signing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/token"
)

func init() {
	vm.Register(core.TxApplySigning, handleApply)
	vm.Register(core.TxApproveSigning, handleApprove)
	vm.Register(core.TxInviteSigning, handleInvite)
	vm.Register(core.TxRespondInvite, handleRespondInvite)
	vm.Register(core.TxCancelSigning, handleCancel)
	vm.Register(core.TxRevokeSigning, handleRevoke)
}

// Status reports which pools a creator is in. The pools are mutually
// exclusive, so at most one field is true.
type Status struct {
	Applied bool `json:"applied"`
	Invited bool `json:"invited"`
	Signed  bool `json:"signed"`
}

// StatusOf returns the signing status of creator.
func StatusOf(state core.State, creator string) (Status, error) {
	var st Status
	var err error
	if st.Applied, err = inPool(state, core.PoolApplications, creator); err != nil {
		return st, err
	}
	if st.Invited, err = inPool(state, core.PoolInvitations, creator); err != nil {
		return st, err
	}
	if st.Signed, err = inPool(state, core.PoolAgreements, creator); err != nil {
		return st, err
	}
	return st, nil
}

// ActiveAgreement returns creator's agreement if it is in force at now.
// It fails with ErrNotSigned when there is none and ErrSigningExpired when
// the record still exists but its term has ended.
func ActiveAgreement(state core.State, creator string, now int64) (*core.SigningAgreement, error) {
	a, err := state.GetAgreement(core.PoolAgreements, creator)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotSigned, creator)
	}
	if err != nil {
		return nil, err
	}
	if a.Expired(now) {
		return nil, fmt.Errorf("%w: %s expired at %d", core.ErrSigningExpired, creator, a.Expiration)
	}
	return a, nil
}

// IsSigned reports whether creator has an agreement in force at now.
func IsSigned(state core.State, creator string, now int64) (bool, error) {
	_, err := ActiveAgreement(state, creator, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotSigned), errors.Is(err, core.ErrSigningExpired):
		return false, nil
	default:
		return false, err
	}
}

// Get returns the record of creator in pool.
func Get(state core.State, pool core.SigningPool, creator string) (*core.SigningAgreement, error) {
	a, err := state.GetAgreement(pool, creator)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", pool, creator, err)
	}
	return a, nil
}

// At returns the record at index in pool, failing with ErrIndexOutOfRange
// past the end.
func At(state core.State, pool core.SigningPool, index uint64) (*core.SigningAgreement, error) {
	n, err := state.AgreementCount(pool)
	if err != nil {
		return nil, err
	}
	if index >= n {
		return nil, fmt.Errorf("%w: %s index %d, size %d", core.ErrIndexOutOfRange, pool, index, n)
	}
	return state.AgreementAt(pool, index)
}

func inPool(state core.State, pool core.SigningPool, creator string) (bool, error) {
	_, err := state.GetAgreement(pool, creator)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// requireFree fails when creator already sits in any pool.
func requireFree(state core.State, creator string) error {
	st, err := StatusOf(state, creator)
	if err != nil {
		return err
	}
	switch {
	case st.Signed:
		return fmt.Errorf("%w: %s", core.ErrAlreadySigned, creator)
	case st.Applied:
		return fmt.Errorf("%w: %s", core.ErrAlreadyApplied, creator)
	case st.Invited:
		return fmt.Errorf("%w: %s", core.ErrAlreadyInvited, creator)
	}
	return nil
}

func handleApply(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ApplySigningPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode apply_signing payload: %w", err)
	}
	if err := requireFree(ctx.State, ctx.Tx.From); err != nil {
		return err
	}
	a := &core.SigningAgreement{Creator: ctx.Tx.From, Amount: p.Amount, Expiration: p.Expiration}
	if err := ctx.State.PutAgreement(core.PoolApplications, a); err != nil {
		return err
	}
	ctx.Emit(events.EventSigningApplied, map[string]any{
		"creator":    a.Creator,
		"amount":     a.Amount,
		"expiration": a.Expiration,
	})
	return nil
}

func handleApprove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ApproveSigningPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve_signing payload: %w", err)
	}
	if _, err := ctx.RequireOperator(); err != nil {
		return err
	}
	app, err := ctx.State.GetAgreement(core.PoolApplications, p.Creator)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrNoApplication, p.Creator)
	}
	if err != nil {
		return err
	}

	if !p.Approve {
		if err := ctx.State.RemoveAgreement(core.PoolApplications, p.Creator); err != nil {
			return err
		}
		ctx.Emit(events.EventSigningRejected, map[string]any{"creator": p.Creator})
		return nil
	}

	if err := token.Transfer(ctx.State, core.EngineAddress, p.Creator, app.Amount); err != nil {
		return fmt.Errorf("pay signing amount: %w", err)
	}
	if err := ctx.State.RemoveAgreement(core.PoolApplications, p.Creator); err != nil {
		return err
	}
	if err := ctx.State.PutAgreement(core.PoolAgreements, app); err != nil {
		return err
	}
	ctx.Emit(events.EventSigningApproved, map[string]any{
		"creator":    app.Creator,
		"amount":     app.Amount,
		"expiration": app.Expiration,
		"via":        "application",
	})
	return nil
}

func handleInvite(ctx *vm.Context, payload json.RawMessage) error {
	var p core.InviteSigningPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode invite_signing payload: %w", err)
	}
	t, err := ctx.RequireOperator()
	if err != nil {
		return err
	}
	if !crypto.IsIdentity(p.Creator) {
		return fmt.Errorf("invite %q: not a valid identity", p.Creator)
	}
	minExpiration := ctx.Now + int64(core.MinSigningTerm/time.Second)
	if p.Expiration < minExpiration {
		return fmt.Errorf("%w: expiration %d is before %d", core.ErrTermTooShort, p.Expiration, minExpiration)
	}
	if err := requireFree(ctx.State, p.Creator); err != nil {
		return err
	}

	// Escrowed by the engine until the creator responds.
	if err := token.Transfer(ctx.State, t.Operator, core.EngineAddress, p.Amount); err != nil {
		return fmt.Errorf("escrow signing amount: %w", err)
	}
	a := &core.SigningAgreement{Creator: p.Creator, Amount: p.Amount, Expiration: p.Expiration}
	if err := ctx.State.PutAgreement(core.PoolInvitations, a); err != nil {
		return err
	}
	ctx.Emit(events.EventSigningInvited, map[string]any{
		"creator":    a.Creator,
		"amount":     a.Amount,
		"expiration": a.Expiration,
	})
	return nil
}

func handleRespondInvite(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RespondInvitePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode respond_invite payload: %w", err)
	}
	creator := ctx.Tx.From
	inv, err := ctx.State.GetAgreement(core.PoolInvitations, creator)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrNoInvitation, creator)
	}
	if err != nil {
		return err
	}
	if err := ctx.State.RemoveAgreement(core.PoolInvitations, creator); err != nil {
		return err
	}

	if !p.Accept {
		t, err := ctx.Treasury()
		if err != nil {
			return err
		}
		if err := token.Transfer(ctx.State, core.EngineAddress, t.Operator, inv.Amount); err != nil {
			return fmt.Errorf("refund signing amount: %w", err)
		}
		ctx.Emit(events.EventSigningDeclined, map[string]any{"creator": creator, "amount": inv.Amount})
		return nil
	}

	if err := token.Transfer(ctx.State, core.EngineAddress, creator, inv.Amount); err != nil {
		return fmt.Errorf("release signing amount: %w", err)
	}
	if err := ctx.State.PutAgreement(core.PoolAgreements, inv); err != nil {
		return err
	}
	ctx.Emit(events.EventSigningApproved, map[string]any{
		"creator":    inv.Creator,
		"amount":     inv.Amount,
		"expiration": inv.Expiration,
		"via":        "invitation",
	})
	return nil
}

// handleCancel ends the caller's agreement. The penalty is charged whether
// or not the term has already run out.
func handleCancel(ctx *vm.Context, _ json.RawMessage) error {
	creator := ctx.Tx.From
	if _, err := Get(ctx.State, core.PoolAgreements, creator); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: %s", core.ErrNotSigned, creator)
		}
		return err
	}
	t, err := ctx.Treasury()
	if err != nil {
		return err
	}
	if err := token.Transfer(ctx.State, creator, core.EngineAddress, t.PenaltyAmount); err != nil {
		return fmt.Errorf("pay penalty: %w", err)
	}
	if err := ctx.State.RemoveAgreement(core.PoolAgreements, creator); err != nil {
		return err
	}
	ctx.Emit(events.EventSigningEnded, map[string]any{
		"creator": creator,
		"by":      "creator",
		"penalty": t.PenaltyAmount,
	})
	return nil
}

func handleRevoke(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RevokeSigningPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode revoke_signing payload: %w", err)
	}
	if _, err := ctx.RequireOperator(); err != nil {
		return err
	}
	err := ctx.State.RemoveAgreement(core.PoolAgreements, p.Creator)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrNotSigned, p.Creator)
	}
	if err != nil {
		return err
	}
	ctx.Emit(events.EventSigningEnded, map[string]any{
		"creator": p.Creator,
		"by":      "platform",
		"penalty": uint64(0),
	})
	return nil
}
