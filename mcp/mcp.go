// Package mcp exposes the codec and session services as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/airlink/proto"
	"github.com/mbocsi/airlink/services"
)

type MCPServer struct {
	Server   *server.MCPServer
	services *services.ServiceContainer
}

func NewMCPServer(container *services.ServiceContainer, version string) *MCPServer {
	s := &MCPServer{
		Server:   server.NewMCPServer("airlink", version),
		services: container,
	}
	s.registerCodecTools()
	s.registerSessionTools()
	return s
}

func (s *MCPServer) Name() string { return "mcp" }

func (s *MCPServer) Start() error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}

// Shutdown is a no-op; the stdio server stops when its input closes or the
// process is signalled.
func (s *MCPServer) Shutdown() error {
	return nil
}

func (s *MCPServer) registerCodecTools() {
	s.Server.AddTool(mcp.NewTool("list_formats",
		mcp.WithDescription("List the frame formats messages can be encoded in"),
	), s.handleListFormats)

	s.Server.AddTool(mcp.NewTool("encode_messages",
		mcp.WithDescription("Encode a message batch into QR frames and a deep link"),
		mcp.WithArray("messages",
			mcp.Required(),
			mcp.Description("Messages with id, protocol, type and payload"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithString("format",
			mcp.Description("Output format, ur when omitted"),
			mcp.Enum("ur", "bcur", "legacy", "xpub", "descriptor", "metamask"),
		),
		mcp.WithNumber("max_multi_frame_size", mcp.Description("Fragment size for animated frames")),
		mcp.WithNumber("max_single_frame_size", mcp.Description("Largest payload shown as a single frame")),
		mcp.WithString("prefix", mcp.Description("Deep link scheme for the single form")),
		mcp.WithNumber("parts", mcp.Description("Number of frames to return")),
	), s.handleEncodeMessages)

	s.Server.AddTool(mcp.NewTool("render_qr",
		mcp.WithDescription("Render text as an SVG QR code"),
		mcp.WithString("data", mcp.Required(), mcp.Description("Text to encode")),
		mcp.WithNumber("scale", mcp.Description("Pixels per module")),
	), s.handleRenderQR)

	s.Server.AddTool(mcp.NewTool("list_protocols",
		mcp.WithDescription("List registered coin protocols and the formats they support"),
	), s.handleListProtocols)
}

func (s *MCPServer) registerSessionTools() {
	s.Server.AddTool(mcp.NewTool("decode_frames",
		mcp.WithDescription("Decode scanned frames or deep links in order and report the messages they carry"),
		mcp.WithArray("frames",
			mcp.Required(),
			mcp.Description("Frames in scan order"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("transport",
			mcp.Description("How the frames arrived"),
			mcp.Enum("qr", "deeplink", "paste"),
		),
	), s.handleDecodeFrames)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPServer) handleListFormats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.services.Codec.Formats())
}

func (s *MCPServer) handleListProtocols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	protocols, err := s.services.Protocols.ListProtocols()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(protocols)
}

func (s *MCPServer) handleEncodeMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.GetRawArguments().(map[string]any)
	if !ok || args["messages"] == nil {
		return mcp.NewToolResultError("messages is required"), nil
	}
	raw, err := json.Marshal(args["messages"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read messages: %v", err)), nil
	}
	var batch proto.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid messages: %v", err)), nil
	}

	result, err := s.services.Codec.Encode(services.EncodeRequest{
		Format:             request.GetString("format", ""),
		Messages:           batch,
		MaxMultiFrameSize:  request.GetInt("max_multi_frame_size", 0),
		MaxSingleFrameSize: request.GetInt("max_single_frame_size", 0),
		Prefix:             request.GetString("prefix", ""),
		Parts:              request.GetInt("parts", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *MCPServer) handleRenderQR(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := request.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError("data is required and must be a string"), nil
	}
	svg, err := s.services.Render.RenderSVG(data, request.GetInt("scale", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(svg)), nil
}

// handleDecodeFrames runs the frames through a throwaway session.
func (s *MCPServer) handleDecodeFrames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	frames, err := request.RequireStringSlice("frames")
	if err != nil || len(frames) == 0 {
		return mcp.NewToolResultError("frames is required and must be a list of strings"), nil
	}
	transport := request.GetString("transport", "")

	session, err := s.services.Sessions.OpenSession()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer s.services.Sessions.CloseSession(session.ID)

	info := session
	for i, frame := range frames {
		if info, err = s.services.Sessions.SubmitFrame(session.ID, services.FrameRequest{Frame: frame, Transport: transport}); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Frame %d: %v", i, err)), nil
		}
		if info.Outcome.Status == proto.StatusSuccess {
			break
		}
	}
	return jsonResult(info)
}
