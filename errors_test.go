package orbql_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/orbql"
)

func TestColumnNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := orbql.NewColumnNotFoundError("User", "nickname")
		assert.Equal(t, `orbql: column "nickname" not found in User`, err.Error())
		assert.Equal(t, `orbql: column "nickname" not found`, orbql.NewColumnNotFoundError("", "nickname").Error())
	})

	t.Run("IsColumnNotFound", func(t *testing.T) {
		err := orbql.NewColumnNotFoundError("User", "nickname")
		assert.True(t, orbql.IsColumnNotFound(err))
		assert.True(t, orbql.IsColumnNotFound(fmt.Errorf("compile: %w", err)))
		assert.True(t, errors.Is(err, orbql.ErrColumnNotFound))
		assert.False(t, orbql.IsColumnNotFound(errors.New("other error")))
		assert.False(t, orbql.IsColumnNotFound(nil))
	})
}

func TestQueryInvalidError(t *testing.T) {
	err := orbql.NewQueryInvalidError("operator %s requires a list", "IsIn")
	assert.Equal(t, "orbql: invalid query: operator IsIn requires a list", err.Error())
	assert.True(t, orbql.IsQueryInvalid(err))
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", err), orbql.ErrQueryInvalid))
	assert.False(t, orbql.IsQueryInvalid(orbql.ErrQueryIsNull))
}

func TestQueryIsNull(t *testing.T) {
	assert.True(t, orbql.IsQueryIsNull(orbql.ErrQueryIsNull))
	assert.True(t, orbql.IsQueryIsNull(fmt.Errorf("where: %w", orbql.ErrQueryIsNull)))
	assert.False(t, orbql.IsQueryIsNull(nil))
}

func TestConnectionErrors(t *testing.T) {
	cause := errors.New("broken pipe")

	t.Run("Lost", func(t *testing.T) {
		err := &orbql.ConnectionLostError{Err: cause}
		assert.Equal(t, "orbql: connection lost: broken pipe", err.Error())
		assert.True(t, orbql.IsConnectionLost(err))
		assert.True(t, orbql.IsRetryable(err))
		assert.ErrorIs(t, err, cause)
		assert.False(t, orbql.IsConnectionFailed(err))
	})

	t.Run("Failed", func(t *testing.T) {
		err := &orbql.ConnectionFailedError{Err: cause}
		assert.True(t, orbql.IsConnectionFailed(err))
		assert.False(t, orbql.IsRetryable(err))
		assert.ErrorIs(t, err, cause)
	})
}

func TestConstraintErrors(t *testing.T) {
	t.Run("DuplicateEntry", func(t *testing.T) {
		err := &orbql.DuplicateEntryError{Field: "email", Value: "a@b.c"}
		assert.Equal(t, "orbql: a@b.c is already being used", err.Error())
		assert.Equal(t, "orbql: duplicate entry for email", (&orbql.DuplicateEntryError{Field: "email"}).Error())
		assert.Equal(t, "orbql: duplicate entry found", (&orbql.DuplicateEntryError{}).Error())
		assert.True(t, orbql.IsDuplicateEntry(fmt.Errorf("insert: %w", err)))
		assert.False(t, orbql.IsCannotDelete(err))
	})

	t.Run("CannotDelete", func(t *testing.T) {
		cause := errors.New("fk violation")
		err := &orbql.CannotDeleteError{Err: cause}
		assert.True(t, orbql.IsCannotDelete(err))
		assert.False(t, orbql.IsInvalidReference(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("InvalidReference", func(t *testing.T) {
		cause := errors.New("fk violation")
		err := &orbql.InvalidReferenceError{Err: cause}
		assert.True(t, orbql.IsInvalidReference(fmt.Errorf("insert: %w", err)))
		assert.False(t, orbql.IsCannotDelete(err))
		assert.False(t, orbql.IsInvalidReference(nil))
		assert.ErrorIs(t, err, cause)
	})
}

func TestQueryFailedError(t *testing.T) {
	cause := errors.New("syntax error")
	err := &orbql.QueryFailedError{
		Statement: `SELECT * FROM "users"`,
		Params:    map[string]any{"id_1": 1},
		Err:       cause,
	}
	assert.Contains(t, err.Error(), "syntax error")
	assert.Contains(t, err.Error(), `SELECT * FROM "users"`)
	assert.True(t, orbql.IsQueryFailed(err))
	assert.ErrorIs(t, err, cause)

	var qf *orbql.QueryFailedError
	require.True(t, errors.As(fmt.Errorf("exec: %w", err), &qf))
	assert.Equal(t, 1, qf.Params["id_1"])
}

func TestDatabaseError(t *testing.T) {
	err := orbql.NewDatabaseError("limit must be a non-negative integer, got %d", -1)
	assert.Equal(t, "orbql: database error: limit must be a non-negative integer, got -1", err.Error())
	assert.True(t, orbql.IsDatabaseError(err))
	assert.False(t, orbql.IsDatabaseError(errors.New("other")))
}

func TestInterruptedAndTimeout(t *testing.T) {
	assert.Equal(t, "orbql: query interrupted", (&orbql.InterruptedError{}).Error())
	assert.True(t, orbql.IsInterrupted(&orbql.InterruptedError{Err: errors.New("canceled")}))
	assert.False(t, orbql.IsRetryable(&orbql.InterruptedError{}))

	err := &orbql.QueryTimeoutError{Statement: "SELECT 1", Err: errors.New("deadline")}
	assert.True(t, orbql.IsQueryTimeout(err))
	assert.True(t, orbql.IsRetryable(err))
	assert.False(t, orbql.IsInterrupted(err))
}

func TestRollbackError(t *testing.T) {
	originalErr := errors.New("original error")
	err := &orbql.RollbackError{Err: originalErr}

	assert.Equal(t, "orbql: rollback failed: original error", err.Error())
	assert.Equal(t, originalErr, errors.Unwrap(err))
}

func TestAggregateError(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		assert.Nil(t, orbql.NewAggregateError())
		assert.Nil(t, orbql.NewAggregateError(nil, nil))
	})

	t.Run("SingleError", func(t *testing.T) {
		err1 := errors.New("error 1")
		assert.Equal(t, err1, orbql.NewAggregateError(nil, err1))
	})

	t.Run("MultipleErrors", func(t *testing.T) {
		err1 := errors.New("error 1")
		err2 := errors.New("error 2")
		err := orbql.NewAggregateError(err1, err2)

		var agg *orbql.AggregateError
		require.True(t, errors.As(err, &agg))
		assert.Len(t, agg.Errors, 2)
		assert.Contains(t, err.Error(), "multiple errors")
		assert.ErrorIs(t, err, err2)
	})
}
