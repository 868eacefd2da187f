package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
)

func testPermit(moi, permitNo string) *permit.Permit {
	return &permit.Permit{
		PermitNumber: permitNo,
		PermitType:   "Vehicle",
		NameEnglish:  "Ahmed Hassan",
		MOINumber:    moi,
		Status:       permit.PermitStatusActive,
	}
}

func TestStorePermitLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testPermit("28012345678", "P-100")
	require.NoError(t, s.InsertPermit(ctx, p))
	require.NotZero(t, p.ID)
	require.False(t, p.CreatedAt.IsZero())

	got, err := s.PermitByIdentityAndNumber(ctx, "28012345678", "P-100")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.PermitByIdentityAndNumber(ctx, "28012345678", "P-999")
	assert.ErrorIs(t, err, permit.ErrNotFound)

	byMOI, err := s.PermitByIdentity(ctx, "28012345678")
	require.NoError(t, err)
	assert.Equal(t, "P-100", byMOI.PermitNumber)

	_, err = s.PermitByIdentity(ctx, "00000000000")
	assert.ErrorIs(t, err, permit.ErrNotFound)
}

func TestStoreInsertPermit_OnePerIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.InsertPermit(ctx, testPermit("28012345678", "P-100")))

	err := s.InsertPermit(ctx, testPermit("28012345678", "P-200"))
	require.Error(t, err, "second permit for the same MOI number must be rejected")
	assert.Equal(t, 1, s.PermitCount())
}

func TestStoreUpdatePermit_ReindexesPair(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testPermit("28012345678", "P-100")
	require.NoError(t, s.InsertPermit(ctx, p))

	p.PermitNumber = "P-999"
	p.ExpiryDate = "01/02/2026"
	require.NoError(t, s.UpdatePermit(ctx, p))

	// The old pair no longer matches; the new one does.
	_, err := s.PermitByIdentityAndNumber(ctx, "28012345678", "P-100")
	assert.ErrorIs(t, err, permit.ErrNotFound)

	got, err := s.PermitByIdentityAndNumber(ctx, "28012345678", "P-999")
	require.NoError(t, err)
	assert.Equal(t, "01/02/2026", got.ExpiryDate)
	assert.Equal(t, 1, s.PermitCount())

	unknown := testPermit("28012345678", "P-1")
	unknown.ID = 404
	assert.ErrorIs(t, s.UpdatePermit(ctx, unknown), permit.ErrNotFound)
}

func TestStoreEmployees(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := &permit.Employee{MOINumber: "28012345678", NameEnglish: "Ahmed Hassan"}
	require.NoError(t, s.InsertEmployee(ctx, e))
	require.NotZero(t, e.ID)

	got, err := s.EmployeeByIdentity(ctx, "28012345678")
	require.NoError(t, err)
	assert.Equal(t, "Ahmed Hassan", got.NameEnglish)

	assert.Error(t, s.InsertEmployee(ctx, &permit.Employee{MOINumber: "28012345678"}))

	_, err = s.EmployeeByIdentity(ctx, "missing")
	assert.ErrorIs(t, err, permit.ErrNotFound)
}

func TestStoreCopySemantics(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := testPermit("28012345678", "P-100")
	require.NoError(t, s.InsertPermit(ctx, p))

	got, err := s.PermitByIdentity(ctx, "28012345678")
	require.NoError(t, err)
	got.PermitNumber = "MUTATED"

	again, err := s.PermitByIdentity(ctx, "28012345678")
	require.NoError(t, err)
	assert.Equal(t, "P-100", again.PermitNumber, "callers must not be able to mutate stored records")
}

func TestStoreWithIdentityLock_Serializes(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Racing find-or-insert on one MOI number: with the lock held around the
	// lookup and write, exactly one goroutine inserts.
	const workers = 16
	var wg sync.WaitGroup
	inserted := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithIdentityLock(ctx, "28012345678", func(st permit.Store) error {
				_, err := st.PermitByIdentity(ctx, "28012345678")
				if err == nil {
					return nil
				}
				if err := st.InsertPermit(ctx, testPermit("28012345678", "P-100")); err != nil {
					return err
				}
				inserted <- struct{}{}
				return nil
			})
		}()
	}
	wg.Wait()
	close(inserted)

	assert.Len(t, inserted, 1)
	assert.Equal(t, 1, s.PermitCount())
}

func TestStoreWithIdentityLock_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WithIdentityLock(ctx, "28012345678", func(permit.Store) error {
		t.Fatal("fn must not run under a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreLedger(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, s.SealRun(ctx, &permit.RunSummary{
			ID:     id,
			Status: permit.RunCompleted,
			Errors: []string{"row 5: Permit Number is required"},
		}))
	}

	runs, err := s.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID, "newest first")
	assert.Equal(t, "run-2", runs[1].ID)

	all, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	got, err := s.RunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, permit.RunCompleted, got.Status)

	// Returned error slices are copies.
	got.Errors[0] = "MUTATED"
	again, err := s.RunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "row 5: Permit Number is required", again.Errors[0])

	_, err = s.RunByID(ctx, "missing")
	assert.ErrorIs(t, err, permit.ErrNotFound)
}
