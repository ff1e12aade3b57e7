package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpdateIgnoresUserPriority(t *testing.T) {
	opts, err := validateUpdate([]byte(`{"id":"t1","userId":"u","userPriority":2.9}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", opts.ID)
	assert.Nil(t, opts.Patch.UserPriority)

	_, err = validateUpdate([]byte(`{"id":"t1","userId":"u","userPriority":"high"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "userPriority", verr.Fields[0].Field)
}

func TestValidateCreateMissingBody(t *testing.T) {
	_, err := validateCreate(nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "body", verr.Fields[0].Field)
}

func TestValidateDeleteBulkPrefixesFields(t *testing.T) {
	targets, bulk, err := validateDelete([]byte(`[{"id":"a","userId":"u"}]`))
	require.NoError(t, err)
	assert.True(t, bulk)
	require.Len(t, targets, 1)
	assert.Equal(t, "a", targets[0].ID)

	_, _, err = validateDelete([]byte(`[{"id":"a","userId":"u"},{"userId":"u"}]`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotEmpty(t, verr.Fields)
	assert.Equal(t, "[1].id", verr.Fields[0].Field)
}
