package proforma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian/internal/crm/docstate"
)

func pi(id int64, parent *int64, status docstate.PIStatus, updated time.Time) ProformaInvoice {
	return ProformaInvoice{ID: id, ParentPIID: parent, Status: status, UpdatedAt: updated}
}

func ref(v int64) *int64 { return &v }

func TestResolveActiveNoApproved(t *testing.T) {
	now := time.Now()
	pis := []ProformaInvoice{
		pi(1, nil, docstate.PIPending, now),
		pi(2, nil, docstate.PIRejected, now),
	}
	require.Nil(t, ResolveActive(pis))
}

func TestResolveActiveOriginalOnly(t *testing.T) {
	now := time.Now()
	pis := []ProformaInvoice{pi(1, nil, docstate.PIApproved, now)}
	active := ResolveActive(pis)
	require.NotNil(t, active)
	require.EqualValues(t, 1, active.ID)
}

func TestResolveActiveApprovedRevisionWins(t *testing.T) {
	now := time.Now()
	pis := []ProformaInvoice{
		pi(1, nil, docstate.PIApproved, now),
		pi(2, ref(1), docstate.PIApproved, now.Add(time.Hour)),
	}
	active := ResolveActive(pis)
	require.NotNil(t, active)
	require.EqualValues(t, 2, active.ID)
}

func TestResolveActivePendingRevisionDoesNotSupersede(t *testing.T) {
	now := time.Now()
	pis := []ProformaInvoice{
		pi(1, nil, docstate.PIApproved, now),
		pi(2, ref(1), docstate.PIPendingApproval, now.Add(time.Hour)),
		pi(3, ref(1), docstate.PIRejected, now.Add(2*time.Hour)),
	}
	active := ResolveActive(pis)
	require.NotNil(t, active)
	require.EqualValues(t, 1, active.ID)
}

func TestResolveActiveWalksChainToTip(t *testing.T) {
	now := time.Now()
	pis := []ProformaInvoice{
		pi(1, nil, docstate.PIApproved, now),
		pi(2, ref(1), docstate.PIApproved, now.Add(time.Hour)),
		pi(3, ref(2), docstate.PIApproved, now.Add(2*time.Hour)),
		pi(4, ref(3), docstate.PIPendingApproval, now.Add(3*time.Hour)),
	}
	active := ResolveActive(pis)
	require.NotNil(t, active)
	require.EqualValues(t, 3, active.ID)
}
