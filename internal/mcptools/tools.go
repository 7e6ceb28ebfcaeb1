package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/slotbook/internal/booking"
	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/slots"
)

const (
	ToolListAvailableSlots = "list_available_slots"
	ToolBookSlot           = "book_slot"
)

// BlockLister lists the free blocks in the booking horizon.
type BlockLister interface {
	ListFreeBlocks(ctx context.Context, horizonDays int) ([]calendar.FreeBlock, error)
}

// Booker reserves one slot.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Result, error)
}

// Deps are the engine parts the tools drive.
type Deps struct {
	Blocks      BlockLister
	Booker      Booker
	HorizonDays int
	Metrics     *instrumentation.Metrics
}

// Register adds the booking tools to s.
func Register(s *mcpserver.MCPServer, deps Deps) error {
	if deps.Blocks == nil || deps.Booker == nil {
		return errors.New("mcptools: block lister and booker are required")
	}
	if deps.HorizonDays <= 0 {
		deps.HorizonDays = calendar.DefaultHorizonDays
	}

	listTool := mcp.NewTool(ToolListAvailableSlots,
		mcp.WithDescription("List bookable consultation slots of a fixed length in the booking horizon"),
		mcp.WithNumber("duration",
			mcp.Description("Slot length in minutes (default: 30)"),
		),
	)
	s.AddTool(listTool, InstrumentedToolHandler(ToolListAvailableSlots, deps.Metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListAvailableSlots(ctx, request, deps)
		}))

	bookTool := mcp.NewTool(ToolBookSlot,
		mcp.WithDescription("Book one slot returned by list_available_slots"),
		mcp.WithString("slotId",
			mcp.Required(),
			mcp.Description("The sourceBlockId of the chosen slot"),
		),
		mcp.WithString("slotStart",
			mcp.Required(),
			mcp.Description("Start of the chosen slot (RFC3339 format, e.g., '2025-01-01T10:00:00Z')"),
		),
		mcp.WithNumber("duration",
			mcp.Required(),
			mcp.Description("Slot length in minutes"),
		),
		mcp.WithString("attendeeName",
			mcp.Required(),
			mcp.Description("Name of the person booking"),
		),
		mcp.WithString("attendeeEmail",
			mcp.Required(),
			mcp.Description("Email address the invite is sent to"),
		),
		mcp.WithString("topic",
			mcp.Required(),
			mcp.Description("What the consultation is about"),
		),
	)
	s.AddTool(bookTool, InstrumentedToolHandler(ToolBookSlot, deps.Metrics,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleBookSlot(ctx, request, deps)
		}))

	return nil
}

func handleListAvailableSlots(ctx context.Context, request mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	minutes := 30
	if v, ok := args["duration"].(float64); ok {
		if v <= 0 || v != float64(int(v)) {
			return mcp.NewToolResultError("duration must be a positive whole number of minutes"), nil
		}
		minutes = int(v)
	}

	blocks, err := deps.Blocks.ListFreeBlocks(ctx, deps.HorizonDays)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list available slots: %v", err)), nil
	}

	found := slots.DecomposeMinutes(blocks, minutes)
	data, err := json.Marshal(map[string]any{"slots": found})
	if err != nil {
		return nil, fmt.Errorf("failed to encode slots: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleBookSlot(ctx context.Context, request mcp.CallToolRequest, deps Deps) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	slotStart, _ := args["slotStart"].(string)
	start, err := time.Parse(time.RFC3339, slotStart)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid slotStart format: %v", err)), nil
	}
	duration, _ := args["duration"].(float64)

	req := booking.Request{
		SourceBlockID: stringArg(args, "slotId"),
		SlotStart:     start,
		Duration:      time.Duration(duration) * time.Minute,
		AttendeeName:  stringArg(args, "attendeeName"),
		AttendeeEmail: stringArg(args, "attendeeEmail"),
		Topic:         stringArg(args, "topic"),
	}

	result, err := deps.Booker.Book(ctx, req)
	if err != nil {
		var be *booking.Error
		if errors.As(err, &be) {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", be.Kind, be.Message)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := result.Message
	if result.EventID != "" {
		text += "\nEvent: " + result.EventID
	}
	for _, w := range result.Warnings {
		text += "\nWarning: " + w
	}
	return mcp.NewToolResultText(text), nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}
