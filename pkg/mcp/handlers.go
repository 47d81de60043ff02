package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"page-replica/pkg/parse"
	"page-replica/pkg/utils"
)

// handleReplicatePage handles the replicate_page tool
func (s *Server) handleReplicatePage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	startTime := time.Now()
	result, err := s.svc.Replicate(ctx, urlStr)
	if err != nil {
		s.log.WithField("url", urlStr).Warnf("Replication failed: %v", err)
		return mcp.NewToolResultError(utils.UserFacingMessage(err)), nil
	}

	payload := map[string]interface{}{
		"final_url": result.FinalURL,
		"stats": map[string]int{
			"images":       result.Stats.Images,
			"total_images": result.Stats.TotalImages,
			"stylesheets":  result.Stats.Stylesheets,
		},
		"duration": time.Since(startTime).String(),
		"html":     result.HTML,
	}

	return mcp.NewToolResultText(formatJSON(payload)), nil
}

// handleCheckURL handles the check_url tool
func (s *Server) handleCheckURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	urlStr := request.GetString("url", "")
	if urlStr == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}

	payload := map[string]interface{}{"url": urlStr}

	parsedURL, err := parse.ValidatePageURL(urlStr)
	if err != nil {
		payload["valid"] = false
		payload["reason"] = err.Error()
		return mcp.NewToolResultText(formatJSON(payload)), nil
	}

	payload["valid"] = true
	payload["normalized"] = parse.NormalizeURL(parsedURL)
	payload["allowed"] = s.robotsGate.IsAllowed(ctx, parsedURL, s.cfg.AppConfig.UserAgent)

	return mcp.NewToolResultText(formatJSON(payload)), nil
}

// formatJSON renders a tool result payload as indented JSON
func formatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
