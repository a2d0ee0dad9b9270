// Package tools exposes the closed catalog of operations the agent may
// invoke: five dormitory database tools plus web search. Dispatch never
// panics and never returns a Go error for a domain rule violation;
// every outcome is a Result with an "ok" flag.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/dormflow/dorm"
	"github.com/BaSui01/dormflow/llm"
)

// Tool names. The catalog is closed: dispatch rejects anything else.
const (
	ToolListAvailableRooms = "list_available_rooms"
	ToolAddStudent         = "add_student"
	ToolGetStudentInfo     = "get_student_info"
	ToolGetRoomInfo        = "get_room_info"
	ToolRemoveStudent      = "remove_student"
	ToolWebSearch          = "web_search"
)

// Result is a tool outcome. It always carries "ok"; failures add
// "error" with a human-readable message.
type Result map[string]any

func ok(fields map[string]any) Result {
	r := Result{"ok": true}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func fail(format string, args ...any) Result {
	return Result{"ok": false, "error": fmt.Sprintf(format, args...)}
}

type addStudentArgs struct {
	StudentID string `json:"mssv"`
	Name      string `json:"ten"`
	BirthYear int    `json:"nam_sinh"`
	RoomID    string `json:"room_id"`
}

type studentIDArgs struct {
	StudentID string `json:"mssv"`
}

type roomIDArgs struct {
	RoomID string `json:"room_id"`
}

type webSearchArgs struct {
	Query string `json:"query"`
}

// Registry binds the tool catalog to its backing services.
type Registry struct {
	store  *dorm.Store
	search *WebSearch
	logger *zap.Logger
}

// NewRegistry builds the catalog. search may be nil; web_search then
// reports itself unavailable instead of failing dispatch.
func NewRegistry(store *dorm.Store, search *WebSearch, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, search: search, logger: logger}
}

// DatabaseSchemas returns the function-calling definitions for the five
// dormitory tools, in catalog order. web_search is excluded: the
// orchestrator invokes it directly on the web branch.
func (r *Registry) DatabaseSchemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        ToolListAvailableRooms,
			Description: "List all dormitory rooms that still have at least one free slot.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
		},
		{
			Name:        ToolAddStudent,
			Description: "Register a new student into a dormitory room.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"mssv":{"type":"string","description":"Student ID"},
				"ten":{"type":"string","description":"Full name"},
				"nam_sinh":{"type":"integer","description":"Birth year"},
				"room_id":{"type":"string","description":"Target room ID, e.g. A100"}},
				"required":["mssv","ten","nam_sinh","room_id"]}`),
		},
		{
			Name:        ToolGetStudentInfo,
			Description: "Look up a student and their room by student ID.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"mssv":{"type":"string","description":"Student ID"}},
				"required":["mssv"]}`),
		},
		{
			Name:        ToolGetRoomInfo,
			Description: "Describe a room and list its current occupants.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"room_id":{"type":"string","description":"Room ID, e.g. A100"}},
				"required":["room_id"]}`),
		},
		{
			Name:        ToolRemoveStudent,
			Description: "Remove a student from the dormitory by student ID.",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"mssv":{"type":"string","description":"Student ID"}},
				"required":["mssv"]}`),
		},
	}
}

// Dispatch runs one tool by name. Unknown names, malformed arguments,
// domain violations, and internal panics all come back as ok:false
// results; the caller never has to distinguish them from success paths.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", rec))
			res = fail("internal error in tool %s", name)
		}
	}()

	switch name {
	case ToolListAvailableRooms:
		return r.listAvailableRooms(ctx)
	case ToolAddStudent:
		return r.addStudent(ctx, args)
	case ToolGetStudentInfo:
		return r.getStudentInfo(ctx, args)
	case ToolGetRoomInfo:
		return r.getRoomInfo(ctx, args)
	case ToolRemoveStudent:
		return r.removeStudent(ctx, args)
	case ToolWebSearch:
		return r.webSearch(ctx, args)
	default:
		return fail("unknown tool: %s", name)
	}
}

func decode(args json.RawMessage, into any) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return json.Unmarshal(args, into)
}

func (r *Registry) listAvailableRooms(ctx context.Context) Result {
	rooms, err := r.store.ListAvailableRooms(ctx)
	if err != nil {
		return fail("database error: %v", err)
	}
	return ok(map[string]any{"rooms": rooms, "count": len(rooms)})
}

func (r *Registry) addStudent(ctx context.Context, raw json.RawMessage) Result {
	var args addStudentArgs
	if err := decode(raw, &args); err != nil {
		return fail("invalid arguments: %v", err)
	}
	if args.StudentID == "" || args.Name == "" || args.RoomID == "" {
		return fail("mssv, ten and room_id are required")
	}
	status, err := r.store.AddStudent(ctx, dorm.Student{
		StudentID: args.StudentID,
		Name:      args.Name,
		BirthYear: args.BirthYear,
		RoomID:    args.RoomID,
	})
	if err != nil {
		var full *dorm.ErrRoomFull
		switch {
		case errors.Is(err, dorm.ErrRoomNotFound):
			return fail("room %s does not exist", args.RoomID)
		case errors.As(err, &full):
			return fail("room %s is full (%d/%d students)", full.RoomID, full.CurrentStudents, full.Capacity)
		case errors.Is(err, dorm.ErrStudentExists):
			return fail("student %s already exists", args.StudentID)
		default:
			return fail("database error: %v", err)
		}
	}
	return ok(map[string]any{
		"message":     fmt.Sprintf("Student %s added to room %s", args.StudentID, args.RoomID),
		"mssv":        args.StudentID,
		"room_id":     args.RoomID,
		"room_status": status,
	})
}

func (r *Registry) getStudentInfo(ctx context.Context, raw json.RawMessage) Result {
	var args studentIDArgs
	if err := decode(raw, &args); err != nil {
		return fail("invalid arguments: %v", err)
	}
	if args.StudentID == "" {
		return fail("mssv is required")
	}
	info, err := r.store.GetStudentInfo(ctx, args.StudentID)
	if err != nil {
		if errors.Is(err, dorm.ErrStudentNotFound) {
			return fail("student %s not found", args.StudentID)
		}
		return fail("database error: %v", err)
	}
	return ok(map[string]any{"student": info})
}

func (r *Registry) getRoomInfo(ctx context.Context, raw json.RawMessage) Result {
	var args roomIDArgs
	if err := decode(raw, &args); err != nil {
		return fail("invalid arguments: %v", err)
	}
	if args.RoomID == "" {
		return fail("room_id is required")
	}
	info, err := r.store.GetRoomInfo(ctx, args.RoomID)
	if err != nil {
		if errors.Is(err, dorm.ErrRoomNotFound) {
			return fail("room %s not found", args.RoomID)
		}
		return fail("database error: %v", err)
	}
	return ok(map[string]any{"room": info})
}

func (r *Registry) removeStudent(ctx context.Context, raw json.RawMessage) Result {
	var args studentIDArgs
	if err := decode(raw, &args); err != nil {
		return fail("invalid arguments: %v", err)
	}
	if args.StudentID == "" {
		return fail("mssv is required")
	}
	removed, err := r.store.RemoveStudent(ctx, args.StudentID)
	if err != nil {
		if errors.Is(err, dorm.ErrStudentNotFound) {
			return fail("student %s not found", args.StudentID)
		}
		return fail("database error: %v", err)
	}
	return ok(map[string]any{
		"message": fmt.Sprintf("Student %s removed; room %s now has a free slot", removed.StudentID, removed.RoomID),
		"mssv":    removed.StudentID,
		"room_id": removed.RoomID,
	})
}

func (r *Registry) webSearch(ctx context.Context, raw json.RawMessage) Result {
	var args webSearchArgs
	if err := decode(raw, &args); err != nil {
		return fail("invalid arguments: %v", err)
	}
	if r.search == nil || !r.search.Available() {
		return fail("%s", SearchUnavailableMessage)
	}
	text, err := r.search.Search(ctx, args.Query)
	if err != nil {
		return fail("web search failed: %v", err)
	}
	return ok(map[string]any{"results": text})
}
