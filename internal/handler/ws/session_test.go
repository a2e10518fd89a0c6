package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAsReadData_BatchIDs(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	raw := []byte(`{"ids":["` + first.String() + `","` + second.String() + `"]}`)

	var req markAsReadData
	require.NoError(t, json.Unmarshal(raw, &req))

	assert.Equal(t, []uuid.UUID{first, second}, req.ids())
}

func TestMarkAsReadData_SingularNotificationID(t *testing.T) {
	id := uuid.New()
	raw := []byte(`{"notificationId":"` + id.String() + `"}`)

	var req markAsReadData
	require.NoError(t, json.Unmarshal(raw, &req))

	assert.Equal(t, []uuid.UUID{id}, req.ids())
}

func TestMarkAsReadData_BothFormsMerge(t *testing.T) {
	batch := uuid.New()
	single := uuid.New()
	raw := []byte(`{"ids":["` + batch.String() + `"],"notificationId":"` + single.String() + `"}`)

	var req markAsReadData
	require.NoError(t, json.Unmarshal(raw, &req))

	assert.ElementsMatch(t, []uuid.UUID{batch, single}, req.ids())
}

func TestMarkAsReadData_EmptyPayload(t *testing.T) {
	var req markAsReadData
	require.NoError(t, json.Unmarshal([]byte(`{}`), &req))

	assert.Empty(t, req.ids())
}
