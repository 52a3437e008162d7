package signing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/vm/modules/signing"
	"github.com/tolelom/tolmarket/wallet"
)

const day = 24 * time.Hour

func status(t *testing.T, h *testutil.Harness, w *wallet.Wallet) signing.Status {
	t.Helper()
	var st signing.Status
	h.View(func(s core.State) error {
		var err error
		st, err = signing.StatusOf(s, w.Identity())
		return err
	})
	return st
}

func TestApplyThenApprove(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	exp := h.Clock.Now().Add(90 * day).Unix()
	treasury := h.Balance(core.EngineAddress)

	h.Must(creator.ApplyForSigning(h.Nonce(creator), 5000, exp))
	assert.Equal(t, signing.Status{Applied: true}, status(t, h, creator))

	h.View(func(s core.State) error {
		app, err := signing.At(s, core.PoolApplications, 0)
		require.NoError(t, err)
		assert.Equal(t, creator.Identity(), app.Creator)
		assert.Equal(t, uint64(5000), app.Amount)
		return nil
	})

	h.Must(h.Operator.ApproveSigning(h.Nonce(h.Operator), creator.Identity(), true))
	assert.Equal(t, signing.Status{Signed: true}, status(t, h, creator))
	assert.Equal(t, uint64(5000), h.Balance(creator.Identity()))
	assert.Equal(t, treasury-5000, h.Balance(core.EngineAddress))

	h.View(func(s core.State) error {
		a, err := signing.ActiveAgreement(s, creator.Identity(), h.Now())
		require.NoError(t, err)
		assert.Equal(t, exp, a.Expiration)
		return nil
	})
}

func TestApplyThenReject(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	h.Must(creator.ApplyForSigning(h.Nonce(creator), 5000, h.Now()+10))

	h.Must(h.Operator.ApproveSigning(h.Nonce(h.Operator), creator.Identity(), false))
	assert.Equal(t, signing.Status{}, status(t, h, creator))
	assert.Zero(t, h.Balance(creator.Identity()))
}

func TestApplyPreconditions(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	h.Must(creator.ApplyForSigning(h.Nonce(creator), 1, h.Now()+10))

	_, err := h.Exec(creator.ApplyForSigning(h.Nonce(creator), 1, h.Now()+10))
	assert.ErrorIs(t, err, core.ErrAlreadyApplied)

	signed := h.Wallet(0)
	h.Sign(signed, 0, 30*day)
	_, err = h.Exec(signed.ApplyForSigning(h.Nonce(signed), 1, h.Now()+10))
	assert.ErrorIs(t, err, core.ErrAlreadySigned)

	invited := h.Wallet(0)
	h.Must(h.Operator.InviteSigning(h.Nonce(h.Operator), invited.Identity(), 0, h.Now()+int64(30*day/time.Second)))
	_, err = h.Exec(invited.ApplyForSigning(h.Nonce(invited), 1, h.Now()+10))
	assert.ErrorIs(t, err, core.ErrAlreadyInvited)
}

func TestApprovePreconditions(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)

	_, err := h.Exec(h.Operator.ApproveSigning(h.Nonce(h.Operator), creator.Identity(), true))
	assert.ErrorIs(t, err, core.ErrNoApplication)

	h.Must(creator.ApplyForSigning(h.Nonce(creator), 1, h.Now()+10))
	_, err = h.Exec(creator.ApproveSigning(h.Nonce(creator), creator.Identity(), true))
	assert.ErrorIs(t, err, core.ErrNotOwner)
}

func TestApproveFailsWhenTreasuryCannotPay(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	h.Must(creator.ApplyForSigning(h.Nonce(creator), testutil.TreasuryFunds+1, h.Now()+10))

	_, err := h.Exec(h.Operator.ApproveSigning(h.Nonce(h.Operator), creator.Identity(), true))
	assert.ErrorIs(t, err, core.ErrTransferFailed)
	assert.Equal(t, signing.Status{Applied: true}, status(t, h, creator))
}

func TestInviteAccept(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	op := h.Balance(h.Operator.Identity())
	treasury := h.Balance(core.EngineAddress)
	exp := h.Clock.Now().Add(30 * day).Unix()

	h.Must(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), 700, exp))
	assert.Equal(t, signing.Status{Invited: true}, status(t, h, creator))
	assert.Equal(t, op-700, h.Balance(h.Operator.Identity()))
	assert.Equal(t, treasury+700, h.Balance(core.EngineAddress), "escrowed")

	h.Must(creator.RespondInvite(h.Nonce(creator), true))
	assert.Equal(t, signing.Status{Signed: true}, status(t, h, creator))
	assert.Equal(t, uint64(700), h.Balance(creator.Identity()))
	assert.Equal(t, treasury, h.Balance(core.EngineAddress))
}

func TestInviteDecline(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	op := h.Balance(h.Operator.Identity())

	h.Must(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), 700, h.Clock.Now().Add(40*day).Unix()))
	h.Must(creator.RespondInvite(h.Nonce(creator), false))

	assert.Equal(t, signing.Status{}, status(t, h, creator))
	assert.Equal(t, op, h.Balance(h.Operator.Identity()), "escrow refunded")
	assert.Zero(t, h.Balance(creator.Identity()))

	_, err := h.Exec(creator.RespondInvite(h.Nonce(creator), true))
	assert.ErrorIs(t, err, core.ErrNoInvitation)
}

func TestInvitePreconditions(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	okExp := h.Clock.Now().Add(30 * day).Unix()

	_, err := h.Exec(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), 1, okExp-1))
	assert.ErrorIs(t, err, core.ErrTermTooShort)

	_, err = h.Exec(creator.InviteSigning(h.Nonce(creator), creator.Identity(), 1, okExp))
	assert.ErrorIs(t, err, core.ErrNotOwner)

	h.Must(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), 1, okExp))
	_, err = h.Exec(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), 1, okExp))
	assert.ErrorIs(t, err, core.ErrAlreadyInvited)

	h.Must(creator.RespondInvite(h.Nonce(creator), true))
	_, err = h.Exec(h.Operator.InviteSigning(h.Nonce(h.Operator), creator.Identity(), 1, okExp))
	assert.ErrorIs(t, err, core.ErrAlreadySigned)

	applicant := h.Wallet(0)
	h.Must(applicant.ApplyForSigning(h.Nonce(applicant), 1, okExp))
	_, err = h.Exec(h.Operator.InviteSigning(h.Nonce(h.Operator), applicant.Identity(), 1, okExp))
	assert.ErrorIs(t, err, core.ErrAlreadyApplied)
}

func TestCreatorCancelChargesPenalty(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(5000)
	h.Sign(creator, 0, 30*day)
	treasury := h.Balance(core.EngineAddress)

	h.Must(creator.CancelSigning(h.Nonce(creator)))
	assert.Equal(t, signing.Status{}, status(t, h, creator))
	assert.Equal(t, uint64(4000), h.Balance(creator.Identity()))
	assert.Equal(t, treasury+1000, h.Balance(core.EngineAddress))

	_, err := h.Exec(creator.CancelSigning(h.Nonce(creator)))
	assert.ErrorIs(t, err, core.ErrNotSigned)
}

func TestCreatorCancelAfterExpiryStillChargesPenalty(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(1000)
	h.Sign(creator, 0, 30*day)
	h.Advance(31 * day)

	h.Must(creator.CancelSigning(h.Nonce(creator)))
	assert.Zero(t, h.Balance(creator.Identity()))
}

func TestCreatorCancelWithoutPenaltyFunds(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(999)
	h.Sign(creator, 0, 30*day)

	_, err := h.Exec(creator.CancelSigning(h.Nonce(creator)))
	assert.ErrorIs(t, err, core.ErrTransferFailed)
	assert.Equal(t, signing.Status{Signed: true}, status(t, h, creator))
}

func TestPlatformRevoke(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	h.Sign(creator, 0, 30*day)

	_, err := h.Exec(creator.RevokeSigning(h.Nonce(creator), creator.Identity()))
	assert.ErrorIs(t, err, core.ErrNotOwner)

	h.Must(h.Operator.RevokeSigning(h.Nonce(h.Operator), creator.Identity()))
	assert.Equal(t, signing.Status{}, status(t, h, creator))

	_, err = h.Exec(h.Operator.RevokeSigning(h.Nonce(h.Operator), creator.Identity()))
	assert.ErrorIs(t, err, core.ErrNotSigned)
}

func TestLazyExpiry(t *testing.T) {
	h := testutil.NewHarness(t)
	creator := h.Wallet(0)
	h.Sign(creator, 0, 30*day)
	h.Advance(30 * day)

	h.View(func(s core.State) error {
		_, err := signing.ActiveAgreement(s, creator.Identity(), h.Now())
		assert.ErrorIs(t, err, core.ErrSigningExpired)

		signed, err := signing.IsSigned(s, creator.Identity(), h.Now())
		require.NoError(t, err)
		assert.False(t, signed)

		// The record lingers until cancelled.
		st, err := signing.StatusOf(s, creator.Identity())
		require.NoError(t, err)
		assert.True(t, st.Signed)
		return nil
	})
}

func TestPoolIndexing(t *testing.T) {
	h := testutil.NewHarness(t)
	creators := []*wallet.Wallet{h.Wallet(0), h.Wallet(0), h.Wallet(0)}
	for _, c := range creators {
		h.Must(c.ApplyForSigning(h.Nonce(c), 1, h.Now()+10))
	}
	h.Must(h.Operator.ApproveSigning(h.Nonce(h.Operator), creators[0].Identity(), false))

	h.View(func(s core.State) error {
		n, err := s.AgreementCount(core.PoolApplications)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)

		first, err := signing.At(s, core.PoolApplications, 0)
		require.NoError(t, err)
		assert.Equal(t, creators[2].Identity(), first.Creator, "last entry swapped into the freed slot")

		_, err = signing.At(s, core.PoolApplications, 2)
		assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

		_, err = signing.Get(s, core.PoolApplications, creators[0].Identity())
		assert.ErrorIs(t, err, core.ErrNotFound)
		return nil
	})
}
