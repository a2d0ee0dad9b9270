package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/dormflow/dorm"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := dorm.NewStore(db, zap.NewNop())
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, db.Create(&dorm.Room{RoomID: "A100", Building: "A", Floor: 1, RoomNumber: 100, Capacity: 2}).Error)
	return NewRegistry(store, NewWebSearch(DefaultWebSearchConfig(), zap.NewNop()), zap.NewNop())
}

func dispatch(t *testing.T, r *Registry, name, args string) Result {
	t.Helper()
	return r.Dispatch(context.Background(), name, json.RawMessage(args))
}

func TestDispatchUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	res := dispatch(t, r, "drop_table", `{}`)
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "unknown tool")
}

func TestDispatchMalformedArguments(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		name string
		tool string
		args string
	}{
		{"add_student broken json", ToolAddStudent, `{"mssv":`},
		{"get_student_info wrong type", ToolGetStudentInfo, `{"mssv": []}`},
		{"get_room_info broken json", ToolGetRoomInfo, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatch(t, r, tt.tool, tt.args)
			assert.Equal(t, false, res["ok"])
			assert.NotEmpty(t, res["error"])
		})
	}
}

func TestDispatchMissingRequiredFields(t *testing.T) {
	r := newTestRegistry(t)
	tests := []struct {
		name string
		tool string
	}{
		{"add_student", ToolAddStudent},
		{"get_student_info", ToolGetStudentInfo},
		{"get_room_info", ToolGetRoomInfo},
		{"remove_student", ToolRemoveStudent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := dispatch(t, r, tt.tool, `{}`)
			assert.Equal(t, false, res["ok"])
			assert.Contains(t, res["error"], "required")
		})
	}
}

func TestAddStudentFlow(t *testing.T) {
	r := newTestRegistry(t)

	res := dispatch(t, r, ToolAddStudent, `{"mssv":"SV001","ten":"Nguyen Van A","nam_sinh":2004,"room_id":"A100"}`)
	require.Equal(t, true, res["ok"])
	status, okCast := res["room_status"].(*dorm.RoomStatus)
	require.True(t, okCast)
	assert.Equal(t, 1, status.CurrentStudents)
	assert.Equal(t, 1, status.AvailableSlots)

	// Duplicate student id.
	res = dispatch(t, r, ToolAddStudent, `{"mssv":"SV001","ten":"X","nam_sinh":2004,"room_id":"A100"}`)
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "already exists")

	// Unknown room.
	res = dispatch(t, r, ToolAddStudent, `{"mssv":"SV002","ten":"Y","nam_sinh":2005,"room_id":"Z999"}`)
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "does not exist")

	// Fill the room, then overflow.
	res = dispatch(t, r, ToolAddStudent, `{"mssv":"SV002","ten":"Y","nam_sinh":2005,"room_id":"A100"}`)
	require.Equal(t, true, res["ok"])
	res = dispatch(t, r, ToolAddStudent, `{"mssv":"SV003","ten":"Z","nam_sinh":2005,"room_id":"A100"}`)
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "full")
}

func TestRemoveStudentFlow(t *testing.T) {
	r := newTestRegistry(t)

	res := dispatch(t, r, ToolRemoveStudent, `{"mssv":"SV404"}`)
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "not found")

	dispatch(t, r, ToolAddStudent, `{"mssv":"SV001","ten":"A","nam_sinh":2004,"room_id":"A100"}`)
	res = dispatch(t, r, ToolRemoveStudent, `{"mssv":"SV001"}`)
	require.Equal(t, true, res["ok"])
	assert.Equal(t, "A100", res["room_id"])
}

func TestGetRoomAndStudentInfo(t *testing.T) {
	r := newTestRegistry(t)
	dispatch(t, r, ToolAddStudent, `{"mssv":"SV001","ten":"A","nam_sinh":2004,"room_id":"A100"}`)

	res := dispatch(t, r, ToolGetRoomInfo, `{"room_id":"A100"}`)
	require.Equal(t, true, res["ok"])
	info, okCast := res["room"].(*dorm.RoomInfo)
	require.True(t, okCast)
	assert.Equal(t, 1, info.CurrentStudents)

	res = dispatch(t, r, ToolGetStudentInfo, `{"mssv":"SV001"}`)
	require.Equal(t, true, res["ok"])

	res = dispatch(t, r, ToolGetRoomInfo, `{"room_id":"Z999"}`)
	assert.Equal(t, false, res["ok"])
}

func TestListAvailableRoomsTool(t *testing.T) {
	r := newTestRegistry(t)

	res := dispatch(t, r, ToolListAvailableRooms, `{}`)
	require.Equal(t, true, res["ok"])
	assert.Equal(t, 1, res["count"])

	// Args are ignored for the no-parameter tool, including none at all.
	res = r.Dispatch(context.Background(), ToolListAvailableRooms, nil)
	require.Equal(t, true, res["ok"])
}

func TestWebSearchWithoutCredential(t *testing.T) {
	r := newTestRegistry(t)
	res := dispatch(t, r, ToolWebSearch, `{"query":"dorm news"}`)
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, SearchUnavailableMessage, res["error"])
}

func TestDatabaseSchemasCatalog(t *testing.T) {
	r := newTestRegistry(t)
	schemas := r.DatabaseSchemas()
	require.Len(t, schemas, 5)

	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
		var params map[string]any
		require.NoError(t, json.Unmarshal(s.Parameters, &params), "schema %s must be valid JSON", s.Name)
	}
	assert.Equal(t, []string{
		ToolListAvailableRooms,
		ToolAddStudent,
		ToolGetStudentInfo,
		ToolGetRoomInfo,
		ToolRemoveStudent,
	}, names)
}

func TestWebSearchRendersOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		w.Write([]byte(`{"organic":[
			{"title":"Dorm curfew","link":"https://example.com/a","snippet":"Closes at 23:00"},
			{"title":"Dorm fees","link":"https://example.com/b","snippet":"Paid monthly"}
		]}`))
	}))
	defer srv.Close()

	ws := NewWebSearch(WebSearchConfig{APIKey: "secret", Endpoint: srv.URL}, zap.NewNop())
	text, err := ws.Search(context.Background(), "dorm curfew")
	require.NoError(t, err)
	assert.Contains(t, text, "1. Dorm curfew")
	assert.Contains(t, text, "Closes at 23:00")
	assert.Contains(t, text, "2. Dorm fees")
}

func TestWebSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	ws := NewWebSearch(WebSearchConfig{APIKey: "secret", Endpoint: srv.URL}, zap.NewNop())
	text, err := ws.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, "No results found.", text)
}
