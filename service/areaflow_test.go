package service

import (
	"fmt"
	"net/http"
	"testing"

	"stageflow/dao/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFlowStepAndAlternatives(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	b := seedArea(t, db, "Area B", "B")
	c := seedArea(t, db, "Area C", "C")

	required := seedFlow(t, db, a.ID, b.ID, 1, true)
	optional := seedFlow(t, db, a.ID, c.ID, 2, false)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/area-flows/next/%d", a.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var next *model.AreaFlow
	decodeData(t, w, &next)
	require.NotNil(t, next)
	assert.Equal(t, required.ID, next.ID)
	assert.True(t, next.Required)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/area-flows/alternatives/%d", a.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var alternatives []model.AreaFlow
	decodeData(t, w, &alternatives)
	require.Len(t, alternatives, 1)
	assert.Equal(t, optional.ID, alternatives[0].ID)

	// An area with no required edges has no mandatory next step.
	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/area-flows/next/%d", b.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	next = nil
	decodeData(t, w, &next)
	assert.Nil(t, next)
}

func TestNextFlowStepPicksLowestOrder(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	b := seedArea(t, db, "Area B", "B")
	c := seedArea(t, db, "Area C", "C")

	seedFlow(t, db, a.ID, c.ID, 5, true)
	lowest := seedFlow(t, db, a.ID, b.ID, 2, true)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/area-flows/next/%d", a.ID), token, nil)
	var next *model.AreaFlow
	decodeData(t, w, &next)
	require.NotNil(t, next)
	assert.Equal(t, lowest.ID, next.ID)
}

func TestCreateAreaFlowRejectsSelfEdge(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")

	w := doJSON(t, r, http.MethodPost, "/api/area-flows", token, map[string]any{
		"fromAreaId": a.ID,
		"toAreaId":   a.ID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAreaFlowDeactivates(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	b := seedArea(t, db, "Area B", "B")
	flow := seedFlow(t, db, a.ID, b.ID, 1, true)

	w := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/area-flows/%d", flow.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The edge leaves the active configuration.
	w = doJSON(t, r, http.MethodGet, "/api/area-flows/configuration", token, nil)
	var cfg map[string][]model.AreaFlow
	decodeData(t, w, &cfg)
	assert.Empty(t, cfg[fmt.Sprint(a.ID)])

	// But the row itself survives for history.
	var count int64
	db.Unscoped().Model(&model.AreaFlow{}).Where("id = ?", flow.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestFlowConfigurationEdgesNeverSelfLoop(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	b := seedArea(t, db, "Area B", "B")
	seedFlow(t, db, a.ID, b.ID, 1, true)
	seedFlow(t, db, b.ID, a.ID, 1, false)

	w := doJSON(t, r, http.MethodGet, "/api/area-flows/configuration", token, nil)
	var cfg map[string][]model.AreaFlow
	decodeData(t, w, &cfg)
	for _, edges := range cfg {
		for _, e := range edges {
			assert.NotEqual(t, e.FromAreaID, e.ToAreaID)
		}
	}
}

func TestValidateTransfer(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	token := tokenFor(t, model.RoleAdmin)

	a := seedArea(t, db, "Area A", "A")
	b := seedArea(t, db, "Area B", "B")
	c := seedArea(t, db, "Area C", "C")
	seedFlow(t, db, a.ID, b.ID, 1, true)
	seedFlow(t, db, a.ID, c.ID, 2, false)

	project := model.Project{Name: "p1", AreaID: a.ID}
	require.NoError(t, db.Create(&project).Error)

	check := func(toArea uint) TransferValidity {
		w := doJSON(t, r, http.MethodPost, "/api/area-flows/validate", token, map[string]any{
			"projectId":  project.ID,
			"fromAreaId": a.ID,
			"toAreaId":   toArea,
		})
		require.Equal(t, http.StatusOK, w.Code)
		var v TransferValidity
		decodeData(t, w, &v)
		return v
	}

	assert.True(t, check(b.ID).Valid)

	// The required step to B blocks the optional branch to C.
	v := check(c.ID)
	assert.False(t, v.Valid)
	assert.NotEmpty(t, v.Reason)

	// No edge at all.
	d := seedArea(t, db, "Area D", "D")
	v = check(d.ID)
	assert.False(t, v.Valid)
}

func TestAreaFlowWriteRequiresAdmin(t *testing.T) {
	db := setupDB(t)
	r := testRouter()
	operator := tokenFor(t, model.RoleOperator)

	a := seedArea(t, db, "Area A", "A")
	b := seedArea(t, db, "Area B", "B")

	w := doJSON(t, r, http.MethodPost, "/api/area-flows", operator, map[string]any{
		"fromAreaId": a.ID,
		"toAreaId":   b.ID,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
